package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// KeyPrefix starts every result cache key.
const KeyPrefix = "result:"

// Key derives the cache key of a result from everything that can change it:
// the data source, the query kind, the SQL text, the bound parameters in
// placeholder order and the row limit. Parameter values are hashed with
// their Go type so 1 and "1" do not collide.
func Key(datasourceID string, kind models.QueryKind, sql string, params []models.BoundParameter, maxRows int) string {
	h := sha256.New()
	field := func(s string) {
		fmt.Fprintf(h, "%d:", len(s))
		io.WriteString(h, s)
	}

	field(datasourceID)
	field(string(kind))
	field(sql)
	fmt.Fprintf(h, "rows=%d;params=%d;", maxRows, len(params))
	for _, p := range params {
		field(p.Name)
		field(fmt.Sprintf("%d|%T|%v", p.Position, p.Value, p.Value))
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}
