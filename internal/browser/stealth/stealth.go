// Package stealth makes an automated Chrome tab look like an ordinary one.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the resolution of the display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona is the browser profile presented to the site.
type Persona struct {
	UserAgent           string           `json:"userAgent"`
	Platform            string           `json:"platform"`
	Languages           []string         `json:"languages"`
	Timezone            string           `json:"timezone,omitempty"`
	Locale              string           `json:"locale,omitempty"`
	HardwareConcurrency int              `json:"hardwareConcurrency,omitempty"`
	WebGLVendor         string           `json:"webGLVendor,omitempty"`
	WebGLRenderer       string           `json:"webGLRenderer,omitempty"`
	Screen              ScreenProperties `json:"screen"`
}

// DefaultPersona is a common desktop Chrome profile.
var DefaultPersona = Persona{
	UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:            "Win32",
	Languages:           []string{"en-US", "en"},
	Timezone:            "America/Los_Angeles",
	Locale:              "en-US",
	HardwareConcurrency: 8,
	WebGLVendor:         "Google Inc. (Intel)",
	WebGLRenderer:       "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	Screen:              ScreenProperties{Width: 1366, Height: 768},
}

// PersonaFromConfig overlays the browser settings on DefaultPersona.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	p.Languages = append([]string(nil), DefaultPersona.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
		p.Platform = platformFor(cfg.UserAgent)
	}
	if cfg.Locale != "" {
		p.Locale = strings.ReplaceAll(cfg.Locale, "_", "-")
		base := strings.SplitN(p.Locale, "-", 2)[0]
		p.Languages = []string{p.Locale}
		if base != p.Locale {
			p.Languages = append(p.Languages, base)
		}
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		p.Screen = ScreenProperties{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	}
	if n := runtime.NumCPU(); n >= 4 && n <= 16 {
		p.HardwareConcurrency = n
	}
	return p
}

func platformFor(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Macintosh"):
		return "MacIntel"
	case strings.Contains(userAgent, "Linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// AcceptLanguage formats languages as an Accept-Language header value with
// descending quality factors, never below 0.7.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(languages[0])
	for i := 1; i < len(languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		fmt.Fprintf(&b, ",%s;q=%.1f", languages[i], q)
	}
	return b.String()
}

// Script returns the evasion script with p bound to it.
func Script(p Persona) (string, error) {
	personaJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const __brandpilotPersona = %s;\n%s", personaJSON, evasionsScript), nil
}

// Apply returns the CDP actions that install p on the current tab. It must
// run before the first navigation so the script is present on every document.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if lang := AcceptLanguage(p.Languages); lang != "" {
				if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}).Do(ctx); err != nil {
					return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
				}
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			override := emulation.SetUserAgentOverride(p.UserAgent).
				WithPlatform(p.Platform).
				WithAcceptLanguage(strings.Join(p.Languages, ","))
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set user agent override: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if p.Screen.Width <= 0 || p.Screen.Height <= 0 {
				return nil
			}
			if err := emulation.SetDeviceMetricsOverride(p.Screen.Width, p.Screen.Height, 1.0, false).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set device metrics: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if p.Timezone != "" {
				if err := emulation.SetTimezoneOverride(p.Timezone).Do(ctx); err != nil {
					return fmt.Errorf("stealth: failed to set timezone: %w", err)
				}
			}
			if p.Locale != "" {
				if err := emulation.SetLocaleOverride().WithLocale(p.Locale).Do(ctx); err != nil {
					return fmt.Errorf("stealth: failed to set locale: %w", err)
				}
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				l.Error("Failed to register evasion script", zap.Error(err))
				return fmt.Errorf("stealth: failed to add script on new document: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("user_agent", p.UserAgent))
			return nil
		}),
	}
}
