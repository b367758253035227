package sandbox

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// platformStatus handles GET /platform/status.
func (x *Exchange) platformStatus(c *gin.Context) {
	c.JSON(http.StatusOK, []int{1})
}

// ticker handles GET /ticker/:symbol with fixed prices.
func (x *Exchange) ticker(c *gin.Context) {
	sym := c.Param("symbol")
	switch {
	case strings.HasPrefix(sym, "t"):
		c.JSON(http.StatusOK, []any{30000.5, 1.2, 30001, 0.8, -150, -0.005, 30000.7, 1520.4, 30500, 29500})
	case strings.HasPrefix(sym, "f"):
		c.JSON(http.StatusOK, []any{0.0002, 0.00019, 30, 1e6, 0.00021, 2, 5e5, 0.00001, 0.05, 0.0002, 4.2e7, 0.0003, 0.0001, nil, nil, 2.5e6})
	default:
		reject(c, http.StatusInternalServerError, codeGeneric, "symbol: invalid")
	}
}

// dispatchAuth answers an authenticated request that passed authenticate.
func (x *Exchange) dispatchAuth(c *gin.Context) {
	path := c.GetString(ctxPath)
	body, _ := c.Get(ctxBody)
	raw, _ := body.([]byte)

	switch path {
	case "auth/r/wallets":
		c.JSON(http.StatusOK, [][]any{
			{"exchange", "USD", 1000.5, 0, 1000.5, nil, nil},
			{"funding", "USD", 2500, 1.25, 2400, nil, nil},
		})
	case "auth/r/permissions":
		c.JSON(http.StatusOK, [][]any{
			{"account", 1, 0}, {"orders", 1, 1}, {"funding", 1, 1}, {"wallets", 1, 0}, {"withdraw", 0, 0},
		})
	case "auth/w/order/submit":
		x.submitOrder(c, raw)
	case "auth/w/order/cancel/multi", "auth/w/funding/offer/cancel/all":
		c.JSON(http.StatusOK, notification("oc_multi-req", []any{}, "SUCCESS", "Cancelled."))
	default:
		if strings.HasPrefix(path, "auth/r/") {
			c.JSON(http.StatusOK, []any{})
			return
		}
		reject(c, http.StatusNotFound, codeGeneric, msgNotFound)
	}
}

// submitOrder echoes the submitted order back as an active order.
func (x *Exchange) submitOrder(c *gin.Context, body []byte) {
	var req struct {
		Symbol string `json:"symbol"`
		Type   string `json:"type"`
		Amount string `json:"amount"`
		Price  string `json:"price"`
		CID    int64  `json:"cid"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Symbol == "" {
		reject(c, http.StatusInternalServerError, codeGeneric, "order: invalid")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsZero() {
		reject(c, http.StatusInternalServerError, codeGeneric, "amount: invalid")
		return
	}
	price := decimal.Zero
	if req.Price != "" {
		if price, err = decimal.NewFromString(req.Price); err != nil {
			reject(c, http.StatusInternalServerError, codeGeneric, "price: invalid")
			return
		}
	}

	x.mu.Lock()
	x.nextOrderID++
	id := x.nextOrderID
	x.mu.Unlock()

	now := time.Now().UnixMilli()
	order := []any{
		id, nil, req.CID, req.Symbol, now, now, json.Number(amount.String()), json.Number(amount.String()),
		req.Type, nil, nil, nil, 0, "ACTIVE", nil, nil, json.Number(price.String()), 0, 0, 0,
		nil, nil, nil, 0, 0, nil, nil, nil, "API>BFX", nil, nil, nil,
	}
	c.JSON(http.StatusOK, notification("on-req", []any{order}, "SUCCESS", "Submitting 1 orders."))
}

func notification(typ string, data any, status, text string) []any {
	return []any{time.Now().UnixMilli(), typ, nil, nil, data, nil, status, text}
}
