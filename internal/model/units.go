package model

const kphPerKnot = 1.852

// KnotsFromKph 公里/小时转节
func KnotsFromKph(v float64) float64 { return v / kphPerKnot }

// KphFromKnots 节转公里/小时
func KphFromKnots(v float64) float64 { return v * kphPerKnot }
