package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

const (
	CredentialStatusEnabled  = 1 // don't use 0, 0 is the default value!
	CredentialStatusDisabled = 2 // also don't use 0
)

// ErrCredentialNotFound reports a miss on an id-addressed operation.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is one upstream session identity: the SSO cookie pair plus the
// account identifiers needed to authenticate as that user.
type Credential struct {
	Id          string `json:"id" gorm:"primaryKey;type:varchar(32)"`
	SSOToken    string `json:"sso_token" gorm:"column:sso_token;type:text"`
	SSORWToken  string `json:"sso_rw_token" gorm:"column:sso_rw_token;type:text"`
	UserId      string `json:"user_id" gorm:"column:user_id"`
	CFClearance string `json:"cf_clearance" gorm:"column:cf_clearance;type:text"`
	Name        string `json:"name" gorm:"index"`
	Status      int    `json:"status" gorm:"default:1"`
	NsfwEnabled bool   `json:"nsfw_enabled" gorm:"default:false"`
	UseCount    int64  `json:"use_count" gorm:"bigint;default:0"`
	CreatedTime int64  `json:"created_time" gorm:"bigint"`
	LastUsedAt  int64  `json:"last_used_at" gorm:"bigint;default:0"`
}

// CredentialId derives the row id from the normalized SSO token. Importing the
// same token twice always lands on the same row.
func CredentialId(ssoToken string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ssoToken)))
	return hex.EncodeToString(sum[:])[:16]
}

// CredentialStore is the gorm-backed implementation of the narrow store
// contract the credential pool consumes.
type CredentialStore struct{}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

func (s *CredentialStore) Get(id string) (*Credential, error) {
	var credential Credential
	err := DB.First(&credential, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get credential %s", id)
	}
	return &credential, nil
}

// List returns all credentials, newest first.
func (s *CredentialStore) List() ([]*Credential, error) {
	var credentials []*Credential
	if err := DB.Order("created_time desc").Find(&credentials).Error; err != nil {
		return nil, errors.Wrap(err, "list credentials")
	}
	return credentials, nil
}

func (s *CredentialStore) Insert(credential *Credential) error {
	if err := DB.Create(credential).Error; err != nil {
		return errors.Wrapf(err, "insert credential %s", credential.Id)
	}
	return nil
}

func (s *CredentialStore) Update(id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := DB.Model(&Credential{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return errors.Wrapf(err, "update credential %s", id)
	}
	return nil
}

func (s *CredentialStore) Delete(id string) error {
	result := DB.Delete(&Credential{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete credential %s", id)
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *CredentialStore) DeleteAll() error {
	if err := DB.Where("1 = 1").Delete(&Credential{}).Error; err != nil {
		return errors.Wrap(err, "delete all credentials")
	}
	return nil
}

func (s *CredentialStore) Count(onlyActive bool) (int64, error) {
	query := DB.Model(&Credential{})
	if onlyActive {
		query = query.Where("status = ?", CredentialStatusEnabled)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count credentials")
	}
	return count, nil
}
