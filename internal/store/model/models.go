package model

import (
	"gorm.io/datatypes"
)

// SessionStateModel holds per-session key/value state, currently just the
// persisted base stake.
type SessionStateModel struct {
	Key           string  `gorm:"column:key;primaryKey"`
	FloatValue    float64 `gorm:"column:float_value"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (SessionStateModel) TableName() string { return "session_state" }

// TradeRecordModel is one settled (or still open) contract trade. Legs carry
// the per-leg detail as JSON so single and dual leg trades share a schema.
type TradeRecordModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	ContractID    string         `gorm:"column:contract_id;uniqueIndex"`
	Strategy      string         `gorm:"column:strategy"`
	Symbol        string         `gorm:"column:symbol"`
	Stake         float64        `gorm:"column:stake"`
	Outcome       string         `gorm:"column:outcome"`
	Profit        float64        `gorm:"column:profit"`
	Legs          datatypes.JSON `gorm:"column:legs"`
	PlacedAtUnix  int64          `gorm:"column:placed_at"`
	SettledAtUnix int64          `gorm:"column:settled_at"`
}

func (TradeRecordModel) TableName() string { return "trade_records" }
