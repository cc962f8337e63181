package main

import (
	"time"
)

// GORM models for the document store, one table per collection.

// UserRecord is the profile document of a signed-in user.
type UserRecord struct {
	UserID         string     `gorm:"primaryKey" json:"userId"`
	Email          string     `gorm:"" json:"email"`
	DisplayName    string     `gorm:"" json:"displayName"`
	IsPro          bool       `gorm:"default:false;not null" json:"isPro"`
	FreeTrialCount int        `gorm:"default:0;not null" json:"freeTrialCount"`
	ProUpgradedAt  *time.Time `gorm:"" json:"proUpgradedAt"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (UserRecord) TableName() string {
	return "users"
}

func (u UserRecord) Profile() UserProfile {
	return UserProfile{
		UserID:         u.UserID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		IsPro:          u.IsPro,
		FreeTrialCount: u.FreeTrialCount,
		ProUpgradedAt:  u.ProUpgradedAt,
	}
}

// HoldingRecord is one row of a user's portfolio document. Position keeps
// the list order of the portfolio.
type HoldingRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"uniqueIndex:idx_holding_user_symbol;not null" json:"userId"`
	Symbol        string    `gorm:"uniqueIndex:idx_holding_user_symbol;not null" json:"symbol"`
	Position      int       `gorm:"not null" json:"position"`
	Name          string    `gorm:"" json:"name"`
	Quantity      float64   `gorm:"not null" json:"quantity"`
	AvgPrice      float64   `gorm:"not null" json:"avgPrice"`
	CurrentPrice  float64   `gorm:"not null" json:"currentPrice"`
	Change        float64   `gorm:"not null" json:"change"`
	PercentChange float64   `gorm:"not null" json:"percentChange"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (HoldingRecord) TableName() string {
	return "portfolio_holdings"
}

// ChatRecord is keyed by owner and chat id, so two users may pick the same
// chat id.
type ChatRecord struct {
	UserID       string    `gorm:"primaryKey;index:idx_chats_user" json:"userId"`
	ID           string    `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	LastActivity time.Time `gorm:"index;not null" json:"lastActivity"`
}

func (ChatRecord) TableName() string {
	return "chats"
}

// MessageRecord is one transcript turn. Seq gives a total order for turns
// created within the same clock tick.
type MessageRecord struct {
	Seq         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ID          string    `gorm:"uniqueIndex;not null" json:"id"`
	ChatID      string    `gorm:"index:idx_messages_chat;not null" json:"chatId"`
	UserID      string    `gorm:"index;not null" json:"userId"`
	Type        string    `gorm:"not null" json:"type"`
	Content     string    `gorm:"not null" json:"content"`
	Suggestions string    `gorm:"" json:"suggestions"`
	ShowChart   *bool     `gorm:"" json:"showChart"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
}

func (MessageRecord) TableName() string {
	return "chat_messages"
}

// AlertRecord lives in the shared alerts collection.
type AlertRecord struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"uniqueIndex;not null" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Body      string    `gorm:"" json:"body"`
	UserID    *string   `gorm:"index" json:"userId"`
	CreatedAt time.Time `gorm:"index;not null" json:"createdAt"`
}

func (AlertRecord) TableName() string {
	return "alerts"
}

func (a AlertRecord) Alert() Alert {
	return Alert{
		ID:        a.ID,
		Title:     a.Title,
		Body:      a.Body,
		UserID:    a.UserID,
		CreatedAt: a.CreatedAt,
	}
}

// PortfolioSnapshot is the value of a user's portfolio on one market day.
type PortfolioSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"uniqueIndex:idx_snapshot_user_date;not null" json:"-"`
	Date      string    `gorm:"uniqueIndex:idx_snapshot_user_date;not null" json:"date"`
	Value     float64   `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}

// Get all model types for auto migration
var allModels = []interface{}{
	&UserRecord{},
	&HoldingRecord{},
	&ChatRecord{},
	&MessageRecord{},
	&AlertRecord{},
	&PortfolioSnapshot{},
}
