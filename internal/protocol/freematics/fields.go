package freematics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/taoyao-code/tracker-server/internal/model"
)

// 数据帧字段码（十六进制）
const (
	keyTick         = 0x0
	keyTime         = 0x10
	keyDate         = 0x11
	keyLatitude     = 0xA
	keyLongitude    = 0xB
	keyAltitude     = 0xC
	keySpeed        = 0xD
	keyCourse       = 0xE
	keySatellites   = 0xF
	keyHDOP         = 0x12
	keyAcceleration = 0x20
	keyMEMSTemp     = 0x23
	keyBattery      = 0x24
	keyRSSI         = 0x81
	keyCPUTemp      = 0x82
	keyIgnition     = 0x92
	keyEngineLoad   = 0x104
	keyCoolantTemp  = 0x105
	keyRPM          = 0x10c
	keyOBDSpeed     = 0x10d
	keyThrottle     = 0x111
)

var errBadField = errors.New("bad field value")

// fix 一次定位的构建状态，遇到下一个 tick 或负载结束时关闭
type fix struct {
	pos *model.Position

	day, month, year             int
	hour, minute, second, millis int
	hasDate, hasTime             bool
	hasLat, hasLon               bool

	memsTemp, cpuTemp *float64
}

// fieldFunc 将原始值写入 fix；返回错误时仅跳过该字段
type fieldFunc func(f *fix, value string) error

// fieldTable 字段码 -> 解析函数，未登记字段以 io<十进制码> 保存
var fieldTable = map[int]fieldFunc{
	keyDate:         parseDate,
	keyTime:         parseTime,
	keyLatitude:     parseLatitude,
	keyLongitude:    parseLongitude,
	keyAltitude:     floatCore(func(p *model.Position, v float64) { p.Altitude = v }),
	keySpeed:        floatCore(func(p *model.Position, v float64) { p.Speed = model.KnotsFromKph(v) }),
	keyCourse:       intCore(func(p *model.Position, v int) { p.Course = float64(v) }),
	keySatellites:   intAttr(model.KeySatellites),
	keyHDOP:         intAttr(model.KeyHDOP),
	keyAcceleration: stringAttr(model.KeyAcceleration),
	keyMEMSTemp:     parseTemp(func(f *fix) **float64 { return &f.memsTemp }),
	keyBattery:      scaledAttr(model.KeyBattery, 0.01),
	keyRSSI:         parseRSSI,
	keyCPUTemp:      parseTemp(func(f *fix) **float64 { return &f.cpuTemp }),
	keyIgnition:     parseIgnition,
	keyEngineLoad:   intAttr(model.KeyEngineLoad),
	keyCoolantTemp:  intAttr(model.KeyCoolantTemp),
	keyRPM:          intAttr(model.KeyRPM),
	keyOBDSpeed:     intCore(func(p *model.Position, v int) { p.Set(model.KeyOBDSpeed, model.KnotsFromKph(float64(v))) }),
	keyThrottle:     intAttr(model.KeyThrottle),
}

func (f *fix) apply(code int, value string) error {
	if fn, ok := fieldTable[code]; ok {
		return fn(f, value)
	}
	f.pos.SetIO(code, value)
	return nil
}

// splitPair 按第一个 '=' 或 ':' 拆分键值，值截止到下一个分隔符；值可以为空
func splitPair(pair string) (key, value string, ok bool) {
	i := strings.IndexAny(pair, "=:")
	if i <= 0 {
		return "", "", false
	}
	key, value = pair[:i], pair[i+1:]
	if j := strings.IndexAny(value, "=:"); j >= 0 {
		value = value[:j]
	}
	return key, value, true
}

// parseKey 十六进制字段码
func parseKey(key string) (int, bool) {
	v, err := strconv.ParseUint(key, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func intAttr(key string) fieldFunc {
	return func(f *fix, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return errBadField
		}
		f.pos.Set(key, v)
		return nil
	}
}

func scaledAttr(key string, scale float64) fieldFunc {
	return func(f *fix, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return errBadField
		}
		f.pos.Set(key, float64(v)*scale)
		return nil
	}
}

func stringAttr(key string) fieldFunc {
	return func(f *fix, value string) error {
		f.pos.Set(key, value)
		return nil
	}
}

func floatCore(set func(p *model.Position, v float64)) fieldFunc {
	return func(f *fix, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errBadField
		}
		set(f.pos, v)
		return nil
	}
}

func intCore(set func(p *model.Position, v int)) fieldFunc {
	return func(f *fix, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return errBadField
		}
		set(f.pos, v)
		return nil
	}
}

func parseLatitude(f *fix, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errBadField
	}
	f.pos.Latitude = v
	f.hasLat = true
	f.pos.Valid = f.hasLat && f.hasLon
	return nil
}

func parseLongitude(f *fix, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errBadField
	}
	f.pos.Longitude = v
	f.hasLon = true
	f.pos.Valid = f.hasLat && f.hasLon
	return nil
}

func parseTemp(slot func(f *fix) **float64) fieldFunc {
	return func(f *fix, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return errBadField
		}
		t := float64(v) * 0.1
		*slot(f) = &t
		return nil
	}
}

func parseIgnition(f *fix, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return errBadField
	}
	f.pos.Set(model.KeyIgnition, v == 1)
	return nil
}

// parseRSSI 信号强度同时作为基站信息附加
func parseRSSI(f *fix, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return errBadField
	}
	f.pos.Set(model.KeyRSSI, v)
	f.pos.Network = model.NewNetwork(model.CellTower{SignalStrength: v})
	return nil
}

// parseDate ddmmyy，左侧补零
func parseDate(f *fix, value string) error {
	d, err := digits(value, 6)
	if err != nil {
		return err
	}
	f.day, f.month, f.year = d[0]*10+d[1], d[2]*10+d[3], d[4]*10+d[5]
	f.hasDate = true
	return nil
}

// parseTime hhmmsscc，cc 为百分之一秒
func parseTime(f *fix, value string) error {
	d, err := digits(value, 8)
	if err != nil {
		return err
	}
	f.hour, f.minute, f.second = d[0]*10+d[1], d[2]*10+d[3], d[4]*10+d[5]
	f.millis = (d[6]*10 + d[7]) * 10
	f.hasTime = true
	return nil
}

// digits 左补零到 width 位后取末 width 位数字
func digits(value string, width int) ([]int, error) {
	if len(value) < width {
		value = strings.Repeat("0", width-len(value)) + value
	}
	value = value[len(value)-width:]
	out := make([]int, width)
	for i := 0; i < width; i++ {
		c := value[i]
		if c < '0' || c > '9' {
			return nil, errBadField
		}
		out[i] = int(c - '0')
	}
	return out, nil
}

// fixTime 日期与时间都出现时才组合
func (f *fix) fixTime() (time.Time, bool) {
	if !f.hasDate || !f.hasTime {
		return time.Time{}, false
	}
	year := f.year
	if year < 100 {
		year += 2000
	}
	return time.Date(year, time.Month(f.month), f.day, f.hour, f.minute, f.second, f.millis*int(time.Millisecond), time.UTC), true
}

// deviceTemp 优先使用 MEMS 温度
func (f *fix) deviceTemp() *float64 {
	if f.memsTemp != nil {
		return f.memsTemp
	}
	return f.cpuTemp
}
