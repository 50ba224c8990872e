package domain

import "time"

// OrderCompletedEvent is published after a paid order commits. Credentials
// travel encrypted; only the delivery side decrypts them.
type OrderCompletedEvent struct {
	OrderID              string    `json:"order_id"`
	OrderNumber          string    `json:"order_number"`
	AccountID            string    `json:"account_id"`
	Amount               int64     `json:"amount"`
	CustomerName         string    `json:"customer_name"`
	CustomerEmail        string    `json:"customer_email"`
	Rank                 string    `json:"rank,omitempty"`
	HeroesCount          int       `json:"heroes_count"`
	SkinsCount           int       `json:"skins_count"`
	EncryptedCredentials Sealed    `json:"credentials"`
	DeliveredAt          time.Time `json:"delivered_at"`
}

// Sealed is the at-rest form of Credentials: every field except LoginMethod
// is ciphertext.
type Sealed struct {
	GameUsername   string `json:"game_username,omitempty"`
	GamePassword   string `json:"game_password,omitempty"`
	LoginMethod    string `json:"login_method,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}
