// services/users.go
package services

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/laur2000/padel-tournment-web/models"
	"github.com/laur2000/padel-tournment-web/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService handles the profile surface: search (admin player picker),
// profile pictures and web-push subscriptions.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// SearchUsers searches registered (non-guest) users by name or email. Used by
// the admin add-player picker.
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.User
	db := s.DB.Model(&models.User{}).Where("is_guest = ?", false).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	type UserSummary struct {
		ID    string  `json:"id"`
		Name  string  `json:"name"`
		Email *string `json:"email,omitempty"`
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return c.JSON(res)
}

// UpdateProfilePicture uploads the image to R2 and stores the public URL.
func (s *UserService) UpdateProfilePicture(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	file, err := c.FormFile("image")
	if err != nil || file.Size == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "image file is required"})
	}
	if file.Size > 2*1024*1024 {
		return c.Status(400).JSON(fiber.Map{"error": "image too large (max 2MB)"})
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "profiles/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to upload profile picture"})
	}

	res := s.DB.Model(&models.User{}).Where("id = ?", userID).Update("profile_picture_url", url)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save profile picture"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(fiber.Map{"profile_picture_url": url})
}

// SubscribePush upserts a push subscription by endpoint. Re-subscribing from
// the same browser rebinds the endpoint to the current user.
func (s *UserService) SubscribePush(c *fiber.Ctx) error {
	type Req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return c.Status(400).JSON(fiber.Map{"error": "endpoint and keys are required"})
	}

	userID := c.Locals("user_id").(string)

	var existing models.PushSubscription
	err := s.DB.Where("endpoint = ?", req.Endpoint).First(&existing).Error
	switch {
	case err == nil:
		err = s.DB.Model(&existing).Updates(map[string]interface{}{
			"user_id": userID,
			"p256dh":  req.Keys.P256dh,
			"auth":    req.Keys.Auth,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.DB.Create(&models.PushSubscription{
			ID:       uuid.NewString(),
			UserID:   userID,
			Endpoint: req.Endpoint,
			P256dh:   req.Keys.P256dh,
			Auth:     req.Keys.Auth,
		}).Error
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save subscription"})
	}
	return c.JSON(fiber.Map{"message": "subscribed"})
}

// UnsubscribePush removes the caller's subscription for the given endpoint.
func (s *UserService) UnsubscribePush(c *fiber.Ctx) error {
	type Req struct {
		Endpoint string `json:"endpoint"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	userID := c.Locals("user_id").(string)
	err := s.DB.Where("endpoint = ? AND user_id = ?", req.Endpoint, userID).
		Delete(&models.PushSubscription{}).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to remove subscription"})
	}
	return c.JSON(fiber.Map{"message": "unsubscribed"})
}
