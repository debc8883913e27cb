package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
)

type DeliveryAgentProfile struct {
	ID                    int       `gorm:"primary_key" json:"id"`
	UserId                int       `gorm:"not null;uniqueIndex" json:"user_id"`
	User                  *User     `gorm:"foreignKey:UserId" json:"-"`
	PhoneNumber           string    `gorm:"size:20" json:"phone_number"`
	EmergencyContactName  string    `gorm:"size:100" json:"emergency_contact_name"`
	EmergencyContactPhone string    `gorm:"size:20" json:"emergency_contact_phone"`
	Address               string    `gorm:"type:text" json:"address"`
	City                  string    `gorm:"size:100" json:"city"`
	State                 string    `gorm:"size:100" json:"state"`
	PostalCode            string    `gorm:"size:20" json:"postal_code"`
	DateOfBirth           *Date     `gorm:"type:date" json:"date_of_birth"`
	LicenseNumber         string    `gorm:"size:50" json:"license_number"`
	LicenseExpiryDate     *Date     `gorm:"type:date" json:"license_expiry_date"`
	VehicleType           string    `gorm:"size:50" json:"vehicle_type"`
	VehicleNumber         string    `gorm:"size:50" json:"vehicle_number"`
	BankAccountNumber     string    `gorm:"size:50" json:"bank_account_number"`
	BankName              string    `gorm:"size:100" json:"bank_name"`
	IfscCode              string    `gorm:"size:20" json:"ifsc_code"`
	ProfilePictureUrl     string    `gorm:"size:500" json:"profile_picture_url"`
	IsProfileComplete     *bool     `gorm:"not null;default:false" json:"is_profile_complete"`
	DisplayName           string    `gorm:"size:100" json:"display_name"`
	IsAvailable           *bool     `gorm:"not null;default:true" json:"is_available"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAgentProfile struct {
	PhoneNumber           string `json:"phone_number"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	Address               string `json:"address"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	PostalCode            string `json:"postal_code"`
	DateOfBirth           *Date  `json:"date_of_birth"`
	LicenseNumber         string `json:"license_number"`
	LicenseExpiryDate     *Date  `json:"license_expiry_date"`
	VehicleType           string `json:"vehicle_type"`
	VehicleNumber         string `json:"vehicle_number"`
	BankAccountNumber     string `json:"bank_account_number"`
	BankName              string `json:"bank_name"`
	IfscCode              string `json:"ifsc_code"`
	ProfilePictureUrl     string `json:"profile_picture_url"`
	DisplayName           string `json:"display_name"`
	IsAvailable           *bool  `json:"is_available"`
}

// AgentIdentity pairs the two names a delivery can be keyed by. Historical
// rows reference agents by login id, newer rows by display name, so agent
// queries match against both.
type AgentIdentity struct {
	LoginId     string
	DisplayName string
}

// Names returns the distinct set of names the identity answers to.
func (a AgentIdentity) Names() []string {
	if a.DisplayName == "" || a.DisplayName == a.LoginId {
		return []string{a.LoginId}
	}
	return []string{a.LoginId, a.DisplayName}
}

func (a AgentIdentity) Matches(agent string) bool {
	for _, name := range a.Names() {
		if name == agent {
			return true
		}
	}
	return false
}

// LookupAgentIdentity resolves the identity for a login id. It never fails
// outward: a missing user or profile degrades to the raw login id.
func LookupAgentIdentity(ctx context.Context, loginId string) AgentIdentity {
	identity := AgentIdentity{LoginId: loginId, DisplayName: loginId}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", loginId).First(&user).Error; err != nil {
		return identity
	}
	if user.FullName != "" {
		identity.DisplayName = user.FullName
	}

	var profile DeliveryAgentProfile
	if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		return identity
	}
	if profile.DisplayName != "" {
		identity.DisplayName = profile.DisplayName
	}
	return identity
}

// ResolveAgentDisplayName returns the preferred display form of an agent
// reference, falling back to the input when nothing better is known.
func ResolveAgentDisplayName(ctx context.Context, loginId string) string {
	return LookupAgentIdentity(ctx, loginId).DisplayName
}

func GetAgentProfile(ctx context.Context, username string) (*DeliveryAgentProfile, error) {
	user, err := fetchDeliveryAgentUser(ctx, username)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var profile DeliveryAgentProfile
	if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		// New agents get an unsaved empty profile seeded from the account.
		return &DeliveryAgentProfile{
			UserId:            user.ID,
			DisplayName:       user.FullName,
			IsProfileComplete: utils.NewFalse(),
			IsAvailable:       utils.NewTrue(),
		}, nil
	}
	return &profile, nil
}

func UpsertAgentProfile(ctx context.Context, username string, input *NewAgentProfile) (*DeliveryAgentProfile, error) {
	user, err := fetchDeliveryAgentUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if input.PhoneNumber != "" {
		if err := utils.ValidatePhoneNumber(input.PhoneNumber, utils.CountryCode); err != nil {
			return nil, utils.ValidationError("phone number is not valid")
		}
	}

	db := config.GetDB()
	var profile DeliveryAgentProfile
	if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		profile = DeliveryAgentProfile{UserId: user.ID}
	}

	profile.PhoneNumber = input.PhoneNumber
	profile.EmergencyContactName = input.EmergencyContactName
	profile.EmergencyContactPhone = input.EmergencyContactPhone
	profile.Address = input.Address
	profile.City = input.City
	profile.State = input.State
	profile.PostalCode = input.PostalCode
	profile.DateOfBirth = input.DateOfBirth
	profile.LicenseNumber = input.LicenseNumber
	profile.LicenseExpiryDate = input.LicenseExpiryDate
	profile.VehicleType = input.VehicleType
	profile.VehicleNumber = input.VehicleNumber
	profile.BankAccountNumber = input.BankAccountNumber
	profile.BankName = input.BankName
	profile.IfscCode = input.IfscCode
	profile.ProfilePictureUrl = input.ProfilePictureUrl
	if input.IsAvailable != nil {
		profile.IsAvailable = input.IsAvailable
	} else {
		profile.IsAvailable = utils.NewTrue()
	}

	// Display name is customizable only until the profile is complete;
	// after that it is frozen so delivery rows stay attributable.
	if profile.DisplayName == "" || !utils.DereferencePtr(profile.IsProfileComplete) {
		if input.DisplayName != "" {
			profile.DisplayName = input.DisplayName
		} else {
			profile.DisplayName = user.FullName
		}
	}

	complete := IsProfileComplete(&profile)
	profile.IsProfileComplete = &complete

	if err := db.WithContext(ctx).Save(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// IsProfileComplete reports whether every field required for dispatch is
// filled in.
func IsProfileComplete(profile *DeliveryAgentProfile) bool {
	filled := func(s string) bool { return strings.TrimSpace(s) != "" }
	return filled(profile.PhoneNumber) &&
		filled(profile.Address) &&
		filled(profile.City) &&
		filled(profile.State) &&
		profile.DateOfBirth != nil &&
		filled(profile.LicenseNumber) &&
		filled(profile.VehicleType) &&
		filled(profile.VehicleNumber)
}

func IsAgentProfileComplete(ctx context.Context, username string) (bool, error) {
	user, err := fetchDeliveryAgentUser(ctx, username)
	if err != nil {
		return false, err
	}
	db := config.GetDB()
	var profile DeliveryAgentProfile
	if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		return false, nil
	}
	return utils.DereferencePtr(profile.IsProfileComplete), nil
}

type AgentOption struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsAvailable bool   `json:"is_available"`
}

// GetDeliveryAgentOptions lists active delivery team users with their
// display names for the assignment dropdown.
func GetDeliveryAgentOptions(ctx context.Context) ([]AgentOption, error) {
	db := config.GetDB()
	var users []User
	if err := db.WithContext(ctx).
		Where("role = ? AND is_active = ?", RoleDeliveryTeam, true).
		Find(&users).Error; err != nil {
		return nil, err
	}

	options := make([]AgentOption, 0, len(users))
	for _, user := range users {
		displayName := user.FullName
		var profile DeliveryAgentProfile
		if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error; err == nil && profile.DisplayName != "" {
			displayName = profile.DisplayName
		}
		options = append(options, AgentOption{
			Username:    user.Username,
			DisplayName: displayName,
			IsAvailable: true,
		})
	}
	sort.Slice(options, func(i, j int) bool {
		return strings.ToLower(options[i].DisplayName) < strings.ToLower(options[j].DisplayName)
	})
	return options, nil
}

// GetAllDeliveryAgents merges agent names already present on deliveries
// with active delivery team usernames.
func GetAllDeliveryAgents(ctx context.Context) ([]string, error) {
	db := config.GetDB()
	var agents []string
	if err := db.WithContext(ctx).Model(&Delivery{}).
		Distinct("delivery_agent").
		Order("delivery_agent").
		Pluck("delivery_agent", &agents).Error; err != nil {
		return nil, err
	}

	var usernames []string
	if err := db.WithContext(ctx).Model(&User{}).
		Where("role = ? AND is_active = ?", RoleDeliveryTeam, true).
		Pluck("username", &usernames).Error; err != nil {
		return nil, err
	}

	agents = utils.UniqueSlice(append(agents, usernames...))
	sort.Strings(agents)
	return agents, nil
}

func fetchDeliveryAgentUser(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, utils.NotFoundError("user not found: %s", username)
	}
	if user.Role != RoleDeliveryTeam {
		return nil, utils.UnauthorizedError("user is not a delivery agent")
	}
	return &user, nil
}
