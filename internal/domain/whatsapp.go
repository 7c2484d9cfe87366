package domain

import "time"

// ConnectionStatus is the lifecycle of a whatsapp session. Casing follows
// the values front-ends already switch on.
type ConnectionStatus string

const (
	ConnectionOpening      ConnectionStatus = "OPENING"
	ConnectionQRCode       ConnectionStatus = "qrcode"
	ConnectionPairing      ConnectionStatus = "PAIRING"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionTimeout      ConnectionStatus = "TIMEOUT"
)

// Whatsapp is one configured messaging connection (one phone number).
type Whatsapp struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Status          ConnectionStatus `json:"status"`
	QRCode          string           `json:"qrcode"`
	Retries         int              `json:"retries"`
	IsDefault       bool             `json:"isDefault"`
	GreetingMessage string           `json:"greetingMessage"`
	FarewellMessage string           `json:"farewellMessage"`
	SessionJID      string           `json:"-"`
	QueueIDs        []int64          `json:"queueIds"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Summary is the connection shape embedded in tickets.
func (w *Whatsapp) Summary() *WhatsappSummary {
	if w == nil {
		return nil
	}
	return &WhatsappSummary{ID: w.ID, Name: w.Name}
}

// WhatsappSummary is the connection shape carried by ticket payloads.
type WhatsappSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
