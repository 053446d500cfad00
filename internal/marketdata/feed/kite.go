package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"ai-trading-floor/internal/exception"
)

// instrumentMapper maps plain symbols to exchange-qualified kite instruments
// and back.
type instrumentMapper struct {
	exchange     string
	toInstrument map[string]string
	toSymbol     map[string]string
	mu           sync.RWMutex
}

func newInstrumentMapper(exchange string) *instrumentMapper {
	return &instrumentMapper{
		exchange:     strings.ToUpper(exchange),
		toInstrument: make(map[string]string),
		toSymbol:     make(map[string]string),
	}
}

func (im *instrumentMapper) instrument(symbol string) string {
	im.mu.RLock()
	inst, ok := im.toInstrument[symbol]
	im.mu.RUnlock()
	if ok {
		return inst
	}

	inst = symbol
	if !strings.Contains(symbol, ":") {
		inst = im.exchange + ":" + symbol
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.toInstrument[symbol] = inst
	im.toSymbol[inst] = symbol
	return inst
}

func (im *instrumentMapper) symbol(instrument string) string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.toSymbol[instrument]
}

// Kite reads last traded prices from Zerodha's REST API.
type Kite struct {
	kc     *kiteconnect.Client
	mapper *instrumentMapper
}

func NewKite(apiKey, accessToken, exchange string) (*Kite, error) {
	if apiKey == "" || accessToken == "" {
		return nil, errors.New("missing KITE_API_KEY/KITE_ACCESS_TOKEN")
	}
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return &Kite{kc: kc, mapper: newInstrumentMapper(exchange)}, nil
}

type kiteResult struct {
	ltp kiteconnect.QuoteLTP
	err error
}

func (k *Kite) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	inst := k.mapper.instrument(symbol)

	ch := make(chan kiteResult, 1)
	go func() {
		ltp, err := k.kc.GetLTP(inst)
		ch <- kiteResult{ltp: ltp, err: err}
	}()

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, fmt.Errorf("kite %s: %w", inst, r.err)
		}
		q, ok := r.ltp[inst]
		if !ok || q.LastPrice <= 0 {
			return decimal.Zero, fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, k.mapper.symbol(inst))
		}
		return decimal.NewFromFloat(q.LastPrice), nil
	}
}
