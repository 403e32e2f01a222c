package nlp

import (
	"os"
	"testing"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// The shared dictionary is sealed on first use, so the custom terms the
// tests rely on are registered before any test runs.
func TestMain(m *testing.M) {
	if err := AddCustomTerms(
		Term{Text: "订单", Canonical: "orders"},
		Term{Text: "金额", Canonical: "amount"},
		Term{Text: "客户", Canonical: "customers"},
		Term{Text: "订单项", Canonical: "order_items", Class: models.TokenWord},
	); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
