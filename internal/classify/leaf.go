package classify

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/focusflow/splitd/internal/models"
)

// LeafClassifier assigns a leaf type and delegation mode to a single atomic
// step. Implementations must be safe for concurrent use; the keyword
// implementation below can be swapped for a learned classifier without
// touching tree or concurrency logic.
type LeafClassifier interface {
	ClassifyLeaf(text string) (models.LeafType, models.DelegationMode)
}

// keywordFile is the on-disk shape of a keyword list override.
type keywordFile struct {
	Digital           []string `yaml:"digital"`
	NeedsConfirmation []string `yaml:"needs_confirmation"`
}

// KeywordClassifier matches step text against keyword categories: steps that
// read as communication drafting, scheduling, searching or filing are
// DIGITAL, everything else HUMAN. Keyword lists are replaceable at runtime
// via Reload/LoadFile; classification is deterministic for a loaded list.
type KeywordClassifier struct {
	mu      sync.RWMutex
	digital []string
	confirm []string
	logger  *zap.Logger
}

// Built-in defaults cover the common digital step categories. Overridable
// from keywords.yaml.
var defaultDigitalKeywords = []string{
	"email", "reply", "draft", "message", "text ", "call ",
	"schedule", "calendar", "invite", "book", "reserve",
	"search", "look up", "research", "find ", "compare",
	"file", "upload", "download", "scan", "submit", "form",
	"order", "pay", "renew", "cancel subscription", "unsubscribe",
	"list ", "spreadsheet", "document",
}

var defaultConfirmKeywords = []string{
	"confirm", "approve", "review", "decide", "choose",
	"pick ", "sign", "verify",
}

// NewKeywordClassifier returns a classifier seeded with the built-in lists.
func NewKeywordClassifier(logger *zap.Logger) *KeywordClassifier {
	return &KeywordClassifier{
		digital: append([]string(nil), defaultDigitalKeywords...),
		confirm: append([]string(nil), defaultConfirmKeywords...),
		logger:  logger,
	}
}

// ClassifyLeaf implements LeafClassifier. DELETE is never produced here; it
// is only ever set by explicit user action.
func (c *KeywordClassifier) ClassifyLeaf(text string) (models.LeafType, models.DelegationMode) {
	lower := strings.ToLower(text)

	c.mu.RLock()
	digital := matchAny(lower, c.digital)
	confirm := matchAny(lower, c.confirm)
	c.mu.RUnlock()

	leafType := models.LeafHuman
	mode := models.DelegationDo
	if digital {
		leafType = models.LeafDigital
		mode = models.DelegationDelegate
	}
	if confirm {
		mode = models.DelegationDoWithMe
	}
	return leafType, mode
}

// Reload swaps both keyword lists atomically. Empty slices fall back to the
// built-in defaults so a sparse override file cannot blank a category.
func (c *KeywordClassifier) Reload(digital, confirm []string) {
	if len(digital) == 0 {
		digital = defaultDigitalKeywords
	}
	if len(confirm) == 0 {
		confirm = defaultConfirmKeywords
	}
	lowered := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, k := range in {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				out = append(out, k)
			}
		}
		return out
	}

	c.mu.Lock()
	c.digital = lowered(digital)
	c.confirm = lowered(confirm)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("Leaf classifier keywords reloaded",
			zap.Int("digital", len(digital)),
			zap.Int("needs_confirmation", len(confirm)),
		)
	}
}

// LoadFile reads a keyword override file and applies it via Reload.
func (c *KeywordClassifier) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read keywords file: %w", err)
	}
	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("parse keywords file: %w", err)
	}
	c.Reload(kf.Digital, kf.NeedsConfirmation)
	return nil
}

func matchAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
