package storage

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
)

// DatabaseStore implements Store on top of GORM/Postgres.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) GetStoreByEID(eid string) (*models.Store, error) {
	var store models.Store
	if err := d.db.Where("eid = ?", eid).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (d *DatabaseStore) GetCustomerByPhone(phone string) (*models.Customer, error) {
	var customer models.Customer
	err := d.db.Where("phone = ?", phone).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindProductByName does a case-insensitive substring match on the
// product name, scoped to the store. First row wins; no ranking.
func (d *DatabaseStore) FindProductByName(storeEID, term string) (*models.Product, error) {
	var product models.Product
	pattern := "%" + strings.ToLower(term) + "%"
	err := d.db.
		Where("store_eid = ? AND LOWER(name) LIKE ?", storeEID, pattern).
		Order("id").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (d *DatabaseStore) GetWelcomeTemplate(storeEID string) (*models.WelcomeTemplate, error) {
	var tpl models.WelcomeTemplate
	err := d.db.Where("store_eid = ?", storeEID).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (d *DatabaseStore) CreateMessageLog(entry *models.MessageLog) error {
	return d.db.Create(entry).Error
}

func (d *DatabaseStore) HasMessageLogOn(storeEID, phone, status string, day time.Time) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var count int64
	err := d.db.Model(&models.MessageLog{}).
		Where("store_eid = ? AND phone = ? AND status = ? AND created_at >= ? AND created_at < ?",
			storeEID, phone, status, start, end).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DatabaseStore) GetSessionState(storeEID string) (*models.SessionState, error) {
	var state models.SessionState
	err := d.db.Where("store_eid = ?", storeEID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (d *DatabaseStore) SetSessionStatus(storeEID, status string) error {
	return d.upsertSession(storeEID, map[string]interface{}{"status": status})
}

func (d *DatabaseStore) SetSessionQR(storeEID, qrCode string) error {
	return d.upsertSession(storeEID, map[string]interface{}{"qr_code": qrCode})
}

func (d *DatabaseStore) upsertSession(storeEID string, fields map[string]interface{}) error {
	var state models.SessionState
	err := d.db.Where("store_eid = ?", storeEID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.SessionState{StoreEID: storeEID, Status: models.SessionStatusDisconnected}
		if status, ok := fields["status"].(string); ok {
			state.Status = status
		}
		if qr, ok := fields["qr_code"].(string); ok {
			state.QRCode = qr
		}
		return d.db.Create(&state).Error
	}
	if err != nil {
		return err
	}
	return d.db.Model(&state).Updates(fields).Error
}

func (d *DatabaseStore) ClearSessionQR(storeEID string) error {
	return d.db.Model(&models.SessionState{}).
		Where("store_eid = ?", storeEID).
		Update("qr_code", "").Error
}
