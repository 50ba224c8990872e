package domain

import "time"

type AccountStatus string

const (
	AccountStatusAvailable AccountStatus = "available"
	AccountStatusReserved  AccountStatus = "reserved"
	AccountStatusSold      AccountStatus = "sold"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusAvailable, AccountStatusReserved, AccountStatusSold:
		return true
	}
	return false
}

// Credentials holds the login data delivered to the buyer in plaintext. It
// only exists in memory for admin views, the owner and the delivery email.
type Credentials struct {
	GameUsername   string `json:"gameUsername,omitempty"`
	GamePassword   string `json:"gamePassword,omitempty"`
	LoginMethod    string `json:"loginMethod,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

type Account struct {
	ID             string        `json:"id"`
	Status         AccountStatus `json:"status"`
	Price          int64         `json:"price"`
	Rank           string        `json:"rank,omitempty"`
	HeroesCount    int           `json:"heroesCount"`
	SkinsCount     int           `json:"skinsCount"`
	Level          int           `json:"level"`
	Matches        int           `json:"matches"`
	WinRate        float64       `json:"winRate"`
	Reputation     int           `json:"reputation"`
	Description    string        `json:"description,omitempty"`
	Images         []string      `json:"images"`
	CharacterSkins []string      `json:"characterSkins"`
	Sealed         Sealed        `json:"-"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Availability is the slice of an account the orchestrator needs to decide
// whether a purchase may start.
type Availability struct {
	Price  int64
	Status AccountStatus
}

func (a Account) Availability() Availability {
	return Availability{Price: a.Price, Status: a.Status}
}

// Validate checks the fields admin tooling must supply.
func (a *Account) Validate() []error {
	var errs []error
	if a.Price <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if a.HeroesCount < 0 || a.SkinsCount < 0 || a.Level < 0 || a.Matches < 0 || a.Reputation < 0 {
		errs = append(errs, ErrCountNegative)
	}
	if a.WinRate < 0 || a.WinRate > 100 {
		errs = append(errs, ErrWinRateInvalid)
	}
	if a.Reputation > 100 {
		errs = append(errs, ErrReputationInvalid)
	}
	if !a.Status.Valid() {
		errs = append(errs, ErrAccountStatusInvalid)
	}
	if a.Rank != "" && !IsKnownRank(a.Rank) {
		errs = append(errs, ErrRankUnknown)
	}
	return errs
}

// AccountFilter narrows catalog listings. Zero values mean "no filter".
type AccountFilter struct {
	Query     string
	Rank      string
	Status    AccountStatus
	MinPrice  int64
	MaxPrice  int64
	MinHeroes int
	MinSkins  int
	Page      int
	PageSize  int
}

func (f AccountFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
