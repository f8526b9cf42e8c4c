// Package settings holds the platform credentials and publishing preferences
// an operator maintains outside the process. A Snapshot is an immutable value;
// Source keeps the current one and swaps it atomically on reload.
package settings

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/shopcast/social-publisher/internal/domain"
)

const DefaultMessageTemplate = "Check out this amazing product: [product:title]"

type Facebook struct {
	AppID       string `yaml:"app_id"`
	AppSecret   string `yaml:"app_secret"`
	PageID      string `yaml:"page_id"`
	AccessToken string `yaml:"access_token"`
}

// Complete reports whether every credential needed to post to a page is set.
func (f Facebook) Complete() bool {
	return f.AppID != "" && f.AppSecret != "" && f.PageID != "" && f.AccessToken != ""
}

type Instagram struct {
	AccountID   string `yaml:"account_id"`
	AccessToken string `yaml:"access_token"`
}

func (i Instagram) Complete() bool {
	return i.AccountID != "" && i.AccessToken != ""
}

type Snapshot struct {
	EnabledPlatforms       []domain.Platform `yaml:"enabled_platforms"`
	DefaultMessageTemplate string            `yaml:"default_message_template"`
	Facebook               Facebook          `yaml:"facebook"`
	Instagram              Instagram         `yaml:"instagram"`
}

// Defaults enables both reference platforms with no credentials.
func Defaults() Snapshot {
	return Snapshot{
		EnabledPlatforms:       []domain.Platform{domain.PlatformFacebook, domain.PlatformInstagram},
		DefaultMessageTemplate: DefaultMessageTemplate,
	}
}

func (s Snapshot) Enabled(p domain.Platform) bool {
	return slices.Contains(s.EnabledPlatforms, p)
}

func (s Snapshot) clone() Snapshot {
	s.EnabledPlatforms = slices.Clone(s.EnabledPlatforms)
	return s
}

// Load builds a Snapshot from defaults, the optional YAML file at path and
// finally environment overrides. An empty path skips the file.
func Load(path string) (Snapshot, error) {
	s := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return Snapshot{}, domain.Configf("parse %s: %v", path, err)
		}
	}
	applyEnv(&s)

	if strings.TrimSpace(s.DefaultMessageTemplate) == "" {
		s.DefaultMessageTemplate = DefaultMessageTemplate
	}
	for _, p := range s.EnabledPlatforms {
		if p == "" {
			return Snapshot{}, domain.Configf("empty platform name in enabled_platforms")
		}
	}
	return s, nil
}

func applyEnv(s *Snapshot) {
	override := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override("FACEBOOK_APP_ID", &s.Facebook.AppID)
	override("FACEBOOK_APP_SECRET", &s.Facebook.AppSecret)
	override("FACEBOOK_PAGE_ID", &s.Facebook.PageID)
	override("FACEBOOK_ACCESS_TOKEN", &s.Facebook.AccessToken)
	override("INSTAGRAM_ACCOUNT_ID", &s.Instagram.AccountID)
	override("INSTAGRAM_ACCESS_TOKEN", &s.Instagram.AccessToken)
	override("DEFAULT_MESSAGE_TEMPLATE", &s.DefaultMessageTemplate)

	if v := os.Getenv("ENABLED_PLATFORMS"); v != "" {
		s.EnabledPlatforms = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				s.EnabledPlatforms = append(s.EnabledPlatforms, domain.Platform(strings.ToLower(name)))
			}
		}
	}
}
