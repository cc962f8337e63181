package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database is the document store behind signed-in users: profiles,
// portfolios, chat transcripts, alerts and portfolio history.
type Database struct {
	db *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto migrate tables
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Helper function to round float to specific decimal places
func roundToDecimal(value float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(value*factor) / factor
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// User profile operations

// GetUser returns the profile document of uid. found is false when the user
// never signed in.
func (d *Database) GetUser(uid string) (UserRecord, bool, error) {
	var user UserRecord
	result := d.db.Where("user_id = ?", uid).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return UserRecord{UserID: uid}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("failed to query user %s: %w", uid, result.Error)
	}
	return user, true, nil
}

// EnsureUser creates the profile document on first sign-in. Existing
// documents are returned untouched apart from filling in a missing email or
// display name.
func (d *Database) EnsureUser(uid, email, displayName string) (UserRecord, bool, error) {
	user := UserRecord{UserID: uid, Email: email, DisplayName: displayName}
	result := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if result.Error != nil {
		return UserRecord{}, false, fmt.Errorf("failed to create user %s: %w", uid, result.Error)
	}
	created := result.RowsAffected > 0

	if !created {
		if err := d.db.Where("user_id = ?", uid).First(&user).Error; err != nil {
			return UserRecord{}, false, fmt.Errorf("failed to query user %s: %w", uid, err)
		}
		updates := map[string]interface{}{}
		if user.Email == "" && email != "" {
			updates["email"] = email
			user.Email = email
		}
		if user.DisplayName == "" && displayName != "" {
			updates["display_name"] = displayName
			user.DisplayName = displayName
		}
		if len(updates) > 0 {
			if err := d.db.Model(&UserRecord{}).Where("user_id = ?", uid).Updates(updates).Error; err != nil {
				return UserRecord{}, false, fmt.Errorf("failed to update user %s: %w", uid, err)
			}
		}
	}
	return user, created, nil
}

// SetPro flips the Pro flag, creating the profile document if needed.
func (d *Database) SetPro(uid string, isPro bool, at time.Time) (UserRecord, error) {
	if _, _, err := d.EnsureUser(uid, "", ""); err != nil {
		return UserRecord{}, err
	}

	updates := map[string]interface{}{"is_pro": isPro}
	if isPro {
		updates["pro_upgraded_at"] = at
	}
	if err := d.db.Model(&UserRecord{}).Where("user_id = ?", uid).Updates(updates).Error; err != nil {
		return UserRecord{}, fmt.Errorf("failed to update pro status for %s: %w", uid, err)
	}

	user, _, err := d.GetUser(uid)
	return user, err
}

// IncrementFreeTrial bumps the free-tier message counter and returns the new
// value.
func (d *Database) IncrementFreeTrial(uid string) (int, error) {
	if _, _, err := d.EnsureUser(uid, "", ""); err != nil {
		return 0, err
	}
	result := d.db.Model(&UserRecord{}).
		Where("user_id = ?", uid).
		Update("free_trial_count", gorm.Expr("free_trial_count + 1"))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to increment free trial count for %s: %w", uid, result.Error)
	}

	user, _, err := d.GetUser(uid)
	if err != nil {
		return 0, err
	}
	return user.FreeTrialCount, nil
}

// Portfolio operations

func (d *Database) LoadHoldings(uid string) ([]Holding, error) {
	var records []HoldingRecord
	result := d.db.Where("user_id = ?", uid).Order("position ASC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query portfolio of %s: %w", uid, result.Error)
	}

	holdings := make([]Holding, 0, len(records))
	for _, r := range records {
		holdings = append(holdings, Holding{
			Symbol:        r.Symbol,
			Name:          r.Name,
			Quantity:      r.Quantity,
			AvgPrice:      r.AvgPrice,
			CurrentPrice:  r.CurrentPrice,
			Change:        r.Change,
			PercentChange: r.PercentChange,
		})
	}
	return holdings, nil
}

// SaveHoldings overwrites the whole portfolio document of uid.
func (d *Database) SaveHoldings(uid string, holdings []Holding) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", uid).Delete(&HoldingRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear portfolio of %s: %w", uid, err)
		}
		if len(holdings) == 0 {
			return nil
		}

		records := make([]HoldingRecord, 0, len(holdings))
		for i, h := range holdings {
			records = append(records, HoldingRecord{
				UserID:        uid,
				Symbol:        h.Symbol,
				Position:      i,
				Name:          h.Name,
				Quantity:      h.Quantity,
				AvgPrice:      h.AvgPrice,
				CurrentPrice:  h.CurrentPrice,
				Change:        h.Change,
				PercentChange: h.PercentChange,
			})
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert portfolio of %s: %w", uid, err)
		}
		return nil
	})
}

// PortfolioOwners lists users that hold at least one position.
func (d *Database) PortfolioOwners() ([]string, error) {
	var owners []string
	result := d.db.Model(&HoldingRecord{}).Distinct("user_id").Order("user_id").Pluck("user_id", &owners)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query portfolio owners: %w", result.Error)
	}
	return owners, nil
}

// Chat operations

func (d *Database) CreateChat(uid, chatID, title string, at time.Time) error {
	chat := ChatRecord{
		ID:           chatID,
		UserID:       uid,
		Title:        title,
		CreatedAt:    at,
		LastActivity: at,
	}
	if err := d.db.Create(&chat).Error; err != nil {
		return fmt.Errorf("failed to create chat %s: %w", chatID, err)
	}
	return nil
}

func (d *Database) GetChat(uid, chatID string) (ChatRecord, error) {
	var chat ChatRecord
	result := d.db.Where("id = ? AND user_id = ?", chatID, uid).First(&chat)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ChatRecord{}, ErrChatNotFound
		}
		return ChatRecord{}, fmt.Errorf("failed to query chat %s: %w", chatID, result.Error)
	}
	return chat, nil
}

// TouchChat records activity on a chat, creating it when the first message
// arrives before the chat document exists. A non-empty title replaces the
// current one.
func (d *Database) TouchChat(uid, chatID, title string, at time.Time) error {
	chat := ChatRecord{ID: chatID, UserID: uid, Title: "New Chat", CreatedAt: at, LastActivity: at}
	result := d.db.Where("id = ? AND user_id = ?", chatID, uid).FirstOrCreate(&chat)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert chat %s: %w", chatID, result.Error)
	}

	updates := map[string]interface{}{"last_activity": at}
	if title != "" {
		updates["title"] = title
	}
	if err := d.db.Model(&ChatRecord{}).Where("id = ? AND user_id = ?", chatID, uid).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update chat %s: %w", chatID, err)
	}
	return nil
}

// ListChats returns chat metadata, most recently active first.
func (d *Database) ListChats(uid string) ([]ChatMetadata, error) {
	var chats []ChatRecord
	result := d.db.Where("user_id = ?", uid).Order("last_activity DESC").Find(&chats)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query chats of %s: %w", uid, result.Error)
	}

	metadata := make([]ChatMetadata, 0, len(chats))
	for _, c := range chats {
		title := c.Title
		if title == "" {
			title = "Untitled Chat"
		}
		metadata = append(metadata, ChatMetadata{
			ID:           c.ID,
			Title:        title,
			CreatedAt:    c.CreatedAt,
			LastActivity: c.LastActivity,
		})
	}
	return metadata, nil
}

func (d *Database) AddMessage(uid, chatID string, msg ChatMessage) error {
	record := MessageRecord{
		ID:        msg.ID,
		ChatID:    chatID,
		UserID:    uid,
		Type:      msg.Type,
		Content:   msg.Content,
		ShowChart: msg.ShowChart,
		CreatedAt: msg.Timestamp,
	}
	if msg.Suggestions != nil {
		encoded, err := json.Marshal(msg.Suggestions)
		if err != nil {
			return fmt.Errorf("failed to encode suggestions: %w", err)
		}
		record.Suggestions = string(encoded)
	}

	if err := d.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert message into chat %s: %w", chatID, err)
	}
	return nil
}

// CountMessages counts the messages of one author in a chat. An empty
// author counts every message.
func (d *Database) CountMessages(uid, chatID, author string) (int64, error) {
	var count int64
	query := d.db.Model(&MessageRecord{}).Where("chat_id = ? AND user_id = ?", chatID, uid)
	if author != "" {
		query = query.Where("type = ?", author)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages of chat %s: %w", chatID, err)
	}
	return count, nil
}

// ListMessages returns a chat transcript in creation order.
func (d *Database) ListMessages(uid, chatID string) ([]ChatMessage, error) {
	var records []MessageRecord
	result := d.db.Where("chat_id = ? AND user_id = ?", chatID, uid).Order("seq ASC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query messages of chat %s: %w", chatID, result.Error)
	}

	messages := make([]ChatMessage, 0, len(records))
	for _, r := range records {
		msg := ChatMessage{
			ID:        r.ID,
			Type:      r.Type,
			Content:   r.Content,
			Timestamp: r.CreatedAt,
			ShowChart: r.ShowChart,
		}
		if r.Suggestions != "" {
			if err := json.Unmarshal([]byte(r.Suggestions), &msg.Suggestions); err != nil {
				return nil, fmt.Errorf("failed to decode suggestions of message %s: %w", r.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Alert operations

func (d *Database) AddAlert(alert Alert) error {
	record := AlertRecord{
		ID:        alert.ID,
		Title:     alert.Title,
		Body:      alert.Body,
		UserID:    alert.UserID,
		CreatedAt: alert.CreatedAt,
	}
	if err := d.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns the newest alerts first.
func (d *Database) ListAlerts(limit int) ([]Alert, error) {
	var records []AlertRecord
	query := d.db.Order("created_at DESC").Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	alerts := make([]Alert, 0, len(records))
	for _, r := range records {
		alerts = append(alerts, r.Alert())
	}
	return alerts, nil
}

// Portfolio history operations

// UpsertSnapshot stores the portfolio value of uid for date, replacing an
// earlier value of the same day.
func (d *Database) UpsertSnapshot(uid, date string, value float64) error {
	snapshot := PortfolioSnapshot{UserID: uid, Date: date, Value: roundToDecimal(value, 2)}
	result := d.db.Where("user_id = ? AND date = ?", uid, date).
		Assign(PortfolioSnapshot{Value: snapshot.Value}).
		FirstOrCreate(&snapshot)
	if result.Error != nil {
		return fmt.Errorf("failed to store snapshot for %s on %s: %w", uid, date, result.Error)
	}
	return nil
}

// GetSnapshots returns the history of uid in date order.
func (d *Database) GetSnapshots(uid string, days int) ([]PortfolioSnapshot, error) {
	var snapshots []PortfolioSnapshot
	query := d.db.Where("user_id = ?", uid)
	if days > 0 {
		threshold := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
		query = query.Where("date >= ?", threshold)
	}
	if err := query.Order("date ASC").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", uid, err)
	}
	return snapshots, nil
}
