package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"storefront/internal/model"
)

func validateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url must be absolute")
	}
	return nil
}

// normalizeEvents rejects unknown or empty event lists and drops duplicates.
func normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("events must not be empty")
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if !model.IsEventType(e) {
			return nil, fmt.Errorf("unknown event type: %s", e)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if err := validateWebhookURL(req.URL); err != nil {
		return err
	}
	events, err := normalizeEvents(req.Events)
	if err != nil {
		return err
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Events = events
	return nil
}

func validateSubscriptionPatch(p *model.SubscriptionPatch) error {
	if p.URL != nil {
		if err := validateWebhookURL(*p.URL); err != nil {
			return err
		}
		u := strings.TrimSpace(*p.URL)
		p.URL = &u
	}
	if p.Events != nil {
		events, err := normalizeEvents(*p.Events)
		if err != nil {
			return err
		}
		p.Events = &events
	}
	return nil
}

// newWebhookSecret returns "whsec_" followed by 32 random bytes in hex.
func newWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
