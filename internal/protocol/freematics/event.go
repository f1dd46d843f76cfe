package freematics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taoyao-code/tracker-server/internal/protocol/checksum"
)

// 事件码
const (
	EventLogin     = 1
	EventLogout    = 2
	EventSync      = 3
	EventReconnect = 4
	EventCommand   = 5
	EventAck       = 6
	EventPing      = 7
	EventLowPower  = 8
)

// event 事件帧中关心的键：EV=7,TS=2206661,ID=A0QWERT0,
type event struct {
	id    string
	vin   string
	code  string
	ev    int
	hasEv bool
	// ticks TS 设备运行毫秒数，约 50 天回绕，应答时原样回显
	ticks string
	// tm TM 设备绝对时间（Unix 秒）
	tm    int64
	hasTM bool
}

func parseEvent(payload string) event {
	var e event
	for _, pair := range strings.Split(payload, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "ID":
			e.id = value
		case "VIN":
			e.vin = value
		case "EV":
			if v, err := strconv.Atoi(value); err == nil {
				e.code, e.ev, e.hasEv = value, v, true
			}
		case "TS":
			e.ticks = value
		case "TM":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				e.tm, e.hasTM = v, true
			}
		}
	}
	return e
}

// BuildAck 构造应答帧：1#EV=<code>,RX=1,TS=<ticks>[,TM=<秒>,TN=<微秒>]*CC
func BuildAck(code, ticks string, serverTime *time.Time) string {
	msg := fmt.Sprintf("1#EV=%s,RX=1,TS=%s", code, ticks)
	if serverTime != nil {
		msg += fmt.Sprintf(",TM=%d,TN=%d", serverTime.Unix(), serverTime.Nanosecond()/1000)
	}
	return checksum.Sign(msg)
}
