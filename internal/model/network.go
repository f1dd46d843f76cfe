package model

// CellTower 基站信息；未上报的字段为零值
type CellTower struct {
	MobileCountryCode int   `json:"mobileCountryCode,omitempty"`
	MobileNetworkCode int   `json:"mobileNetworkCode,omitempty"`
	LocationAreaCode  int   `json:"locationAreaCode,omitempty"`
	CellID            int64 `json:"cellId,omitempty"`
	SignalStrength    int   `json:"signalStrength,omitempty"`
}

// Network 无线环境快照
type Network struct {
	RadioType  string      `json:"radioType,omitempty"`
	CellTowers []CellTower `json:"cellTowers,omitempty"`
}

// NewNetwork 以单个基站创建网络信息
func NewNetwork(tower CellTower) *Network {
	return &Network{CellTowers: []CellTower{tower}}
}

// AddCellTower 追加基站
func (n *Network) AddCellTower(tower CellTower) {
	n.CellTowers = append(n.CellTowers, tower)
}
