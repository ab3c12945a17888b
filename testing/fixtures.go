package testing

import (
	"fmt"
	"time"

	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

// NewTestUser builds an active tenant account with the given password
func NewTestUser(email, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &models.User{
		FirstName:     "Test",
		LastName:      "Tenant",
		Email:         email,
		PasswordHash:  string(hash),
		ContactNumber: utils.ToPtr("6281200000099"),
		IsActive:      utils.ToPtr(true),
	}
}

// NewTestTemplate builds a plain text template owned by the tenant
func NewTestTemplate(tenantID uint) *models.MessageTemplate {
	return &models.MessageTemplate{
		TenantID: tenantID,
		Kind:     models.TemplateKindPlainText,
		Message:  "Hello {name}",
	}
}

// NewTestBroadcast builds a due live broadcast job with n pending recipients
func NewTestBroadcast(jobID, tenantID uint, n int) (*models.BroadcastJob, []*models.Recipient) {
	job := &models.BroadcastJob{
		ID:          jobID,
		TenantID:    tenantID,
		DeviceID:    "device-1",
		Kind:        models.MessageKindLive,
		MessageText: utils.ToPtr("Hello {name}"),
		DeliveryAt:  utils.UTCNow().Add(-time.Minute),
		Status:      models.BroadcastStatusScheduled,
	}

	rows := make([]*models.Recipient, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, &models.Recipient{
			JobID:         jobID,
			Nokey:         uint(i),
			TenantID:      tenantID,
			ContactNumber: fmt.Sprintf("62812000001%02d", i),
			ContactName:   fmt.Sprintf("Contact %d", i),
			DeviceName:    "device-1",
			Outcome:       models.OutcomePending,
		})
	}
	return job, rows
}
