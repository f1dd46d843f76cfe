// Package checksum 提供设备协议常用的校验算法。
// 所有函数均为纯函数，无全局可变状态，可在任意连接的 goroutine 中并发调用。
package checksum

import (
	"fmt"
	"strings"
)

// Params CRC 参数（宽度 8 或 16）
type Params struct {
	Name   string
	Width  int
	Poly   uint16
	Init   uint16
	RefIn  bool
	RefOut bool
	XorOut uint16
}

// 具名 CRC 变体
var (
	CRC8EGTS = Params{Name: "CRC-8/EGTS", Width: 8, Poly: 0x31, Init: 0xFF}
	CRC8ROHC = Params{Name: "CRC-8/ROHC", Width: 8, Poly: 0x07, Init: 0xFF, RefIn: true, RefOut: true}

	CRC16IBM        = Params{Name: "CRC-16/IBM", Width: 16, Poly: 0x8005, RefIn: true, RefOut: true}
	CRC16X25        = Params{Name: "CRC-16/X-25", Width: 16, Poly: 0x1021, Init: 0xFFFF, RefIn: true, RefOut: true, XorOut: 0xFFFF}
	CRC16Modbus     = Params{Name: "CRC-16/MODBUS", Width: 16, Poly: 0x8005, Init: 0xFFFF, RefIn: true, RefOut: true}
	CRC16CCITTFalse = Params{Name: "CRC-16/CCITT-FALSE", Width: 16, Poly: 0x1021, Init: 0xFFFF}
	CRC16Kermit     = Params{Name: "CRC-16/KERMIT", Width: 16, Poly: 0x1021, RefIn: true, RefOut: true}
	CRC16XModem     = Params{Name: "CRC-16/XMODEM", Width: 16, Poly: 0x1021}
)

// CRC8 按参数计算 8 位 CRC
func CRC8(p Params, data []byte) uint8 {
	return uint8(compute(p, 8, data))
}

// CRC16 按参数计算 16 位 CRC
func CRC16(p Params, data []byte) uint16 {
	return uint16(compute(p, 16, data))
}

// compute 逐位计算，不依赖预生成表
func compute(p Params, width int, data []byte) uint32 {
	if p.Width != 0 {
		width = p.Width
	}
	mask := uint32(1)<<width - 1
	top := uint32(1) << (width - 1)
	poly := uint32(p.Poly) & mask
	crc := uint32(p.Init) & mask

	for _, b := range data {
		v := uint32(b)
		if p.RefIn {
			v = reflect(v, 8)
		}
		crc ^= v << (width - 8)
		for i := 0; i < 8; i++ {
			if crc&top != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
			crc &= mask
		}
	}
	if p.RefOut {
		crc = reflect(crc, width)
	}
	return (crc ^ uint32(p.XorOut)) & mask
}

func reflect(v uint32, width int) uint32 {
	var r uint32
	for i := 0; i < width; i++ {
		if v&(1<<i) != 0 {
			r |= 1 << (width - 1 - i)
		}
	}
	return r
}

// Luhn 计算模 10 校验位（如 IMEI 第 15 位）
func Luhn(n int64) int {
	if n < 0 {
		n = -n
	}
	var sum int64
	for i := 0; n != 0; i++ {
		digit := n % 10
		if i%2 == 0 {
			digit *= 2
			if digit >= 10 {
				digit = 1 + digit%10
			}
		}
		sum += digit
		n /= 10
	}
	return int((10 - sum%10) % 10)
}

// Modulo256 字节算术和，模 256
func Modulo256(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

// Xor 字节异或
func Xor(data []byte) uint8 {
	var x uint8
	for _, b := range data {
		x ^= b
	}
	return x
}

// NMEA 返回 "*HH"，HH 为语句体所有字符异或后的大写十六进制
func NMEA(sentence string) string {
	return fmt.Sprintf("*%02X", Xor([]byte(sentence)))
}

// Sum 返回 ASCII 码累加和模 256 的两位大写十六进制
func Sum(text string) string {
	var sum uint8
	for i := 0; i < len(text); i++ {
		sum += text[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// VerifySum 比较 Sum(text) 与收到的校验串（区分大小写）
func VerifySum(text, received string) (expected string, ok bool) {
	expected = Sum(text)
	return expected, expected == received
}

// Sign 追加 "*" 与 Sum 校验，生成可下发的文本帧
func Sign(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 3)
	b.WriteString(text)
	b.WriteByte('*')
	b.WriteString(Sum(text))
	return b.String()
}
