package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeChannel  SettingType = "channel"
	SettingTypeRole     SettingType = "role"
	SettingTypeRoleList SettingType = "role_list"
)

const (
	KeyLogChannel          = "log_channel_id"
	KeyAnnouncementChannel = "announcement_channel_id"
	KeyTenureQualifier     = "tenure_qualifying_role_id"
	KeyAcceptAddRoles      = "accept_add_roles"
	KeyAcceptRemoveRoles   = "accept_remove_roles"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Description string      `json:"description"`
	HasValue    bool        `json:"has_value"`
}

// Store is the persistence the manager needs; *localdb.Store satisfies it.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

type SettingsManager struct {
	store Store
}

func NewSettingsManager(store Store) *SettingsManager {
	return &SettingsManager{store: store}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	KeyLogChannel: {
		Key: KeyLogChannel, Type: SettingTypeChannel,
		Description: "Private channel for action logs and cycle reports",
	},
	KeyAnnouncementChannel: {
		Key: KeyAnnouncementChannel, Type: SettingTypeChannel,
		Description: "Public channel for award cycle announcements",
	},
	KeyTenureQualifier: {
		Key: KeyTenureQualifier, Type: SettingTypeRole,
		Description: "Role a member must hold to be eligible for tenure milestones",
	},
	KeyAcceptAddRoles: {
		Key: KeyAcceptAddRoles, Value: "[]", Type: SettingTypeRoleList,
		Description: "Roles given by !accept",
	},
	KeyAcceptRemoveRoles: {
		Key: KeyAcceptRemoveRoles, Value: "[]", Type: SettingTypeRoleList,
		Description: "Roles removed by !accept",
	},
}

// GetSetting returns the stored value or the default when unset.
func (sm *SettingsManager) GetSetting(ctx context.Context, key string) (string, error) {
	def, known := DefaultSettings[key]
	if !known {
		return "", fmt.Errorf("unknown setting key: %s", key)
	}

	value, err := sm.store.GetSetting(ctx, key)
	if errors.Is(err, localdb.ErrNotFound) {
		return def.Value, nil
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(ctx context.Context, key, value string) error {
	if _, exists := DefaultSettings[key]; !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	if err := sm.store.SetSetting(ctx, key, value); err != nil {
		logger.Error("Failed to save setting", zap.Error(err), zap.String("key", key))
		return err
	}
	logger.Info("Setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

// ClearSetting removes the stored value so the default applies again.
func (sm *SettingsManager) ClearSetting(ctx context.Context, key string) error {
	if _, exists := DefaultSettings[key]; !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	return sm.store.DeleteSetting(ctx, key)
}

// GetAllSettings returns every known key with its current value.
func (sm *SettingsManager) GetAllSettings(ctx context.Context) ([]Setting, error) {
	out := make([]Setting, 0, len(DefaultSettings))
	for key, def := range DefaultSettings {
		s := def
		value, err := sm.GetSetting(ctx, key)
		if err != nil {
			return nil, err
		}
		s.Value = value
		s.HasValue = value != "" && value != "[]"
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func ValidateSetting(key, value string) error {
	def, ok := DefaultSettings[key]
	if !ok {
		return fmt.Errorf("unknown setting key: %s", key)
	}

	switch def.Type {
	case SettingTypeChannel, SettingTypeRole:
		if _, err := parseID(value); err != nil {
			return fmt.Errorf("%s must be a numeric id: %w", key, err)
		}
	case SettingTypeRoleList:
		if _, err := decodeIDList(value); err != nil {
			return fmt.Errorf("%s must be a JSON array of ids: %w", key, err)
		}
	}
	return nil
}

// ID returns the id stored under key; ok is false when it is unset.
func (sm *SettingsManager) ID(ctx context.Context, key string) (snowflake.ID, bool, error) {
	value, err := sm.GetSetting(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if value == "" {
		return 0, false, nil
	}
	id, err := parseID(value)
	if err != nil {
		return 0, false, fmt.Errorf("setting %s holds an invalid id %q: %w", key, value, err)
	}
	return id, true, nil
}

func (sm *SettingsManager) SetID(ctx context.Context, key string, id snowflake.ID) error {
	return sm.SetSetting(ctx, key, id.String())
}

// IDList returns the role list stored under key.
func (sm *SettingsManager) IDList(ctx context.Context, key string) ([]snowflake.ID, error) {
	value, err := sm.GetSetting(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeIDList(value)
}

// AddToIDList appends id to the list under key; added is false when it was already present.
func (sm *SettingsManager) AddToIDList(ctx context.Context, key string, id snowflake.ID) (added bool, err error) {
	ids, err := sm.IDList(ctx, key)
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return false, nil
		}
	}
	ids = append(ids, id)

	raw, err := encodeIDList(ids)
	if err != nil {
		return false, err
	}
	return true, sm.SetSetting(ctx, key, raw)
}

func parseID(value string) (snowflake.ID, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("id must be positive: %d", n)
	}
	return snowflake.ID(n), nil
}

// role list は JSON の数値配列で保存する（例: [123,456]）
func decodeIDList(value string) ([]snowflake.ID, error) {
	if value == "" {
		return []snowflake.ID{}, nil
	}
	var raw []int64
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, n := range raw {
		ids = append(ids, snowflake.ID(n))
	}
	return ids, nil
}

func encodeIDList(ids []snowflake.ID) (string, error) {
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, int64(id))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
