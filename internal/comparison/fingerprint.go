package comparison

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"takeoff-backend/internal/items"
)

// Fingerprint hashes the identity and content of the comparison inputs. Item
// order, IDs and timestamps do not affect it.
func Fingerprint(boq, detail []items.Item) string {
	lines := make([]string, 0, len(boq)+len(detail))
	for _, it := range boq {
		lines = append(lines, identity("boq", it))
	}
	for _, it := range detail {
		lines = append(lines, identity(string(it.FileKind), it))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func identity(kind string, it items.Item) string {
	thickness := ""
	if it.ThicknessMM != nil {
		thickness = strconv.FormatFloat(*it.ThicknessMM, 'f', -1, 64)
	}
	fields := ""
	if len(it.Fields) > 0 {
		// encoding/json sorts map keys.
		if b, err := json.Marshal(it.Fields); err == nil {
			fields = string(b)
		}
	}
	return strings.Join([]string{
		kind,
		items.NormalizeCode(it.ItemCode),
		strings.TrimSpace(it.Description),
		strings.TrimSpace(it.Notes),
		thickness,
		fields,
	}, "|")
}
