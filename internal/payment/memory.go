package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/KumarG23/nep-back/internal/apperr"
)

// MemoryGateway 进程内沙箱网关，未配置网关密钥时用于本地联调
type MemoryGateway struct {
	mu      sync.Mutex
	intents map[string]Intent
	err     error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{intents: make(map[string]Intent)}
}

func (g *MemoryGateway) CreateIntent(_ context.Context, params CreateIntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, apperr.Payment(ErrUnavailable.Error(), fmt.Errorf("%w: %v", ErrUnavailable, g.err))
	}
	if params.Amount <= 0 {
		return nil, apperr.Payment("amount must be positive", nil)
	}

	id := "pi_" + uuid.NewString()
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Amount:       params.Amount,
		Currency:     params.Currency,
		Status:       StatusRequiresPaymentMethod,
		Email:        params.Email,
		Metadata:     copyMetadata(params.Metadata),
	}
	g.intents[id] = in
	return &in, nil
}

func (g *MemoryGateway) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, apperr.Payment(ErrUnavailable.Error(), fmt.Errorf("%w: %v", ErrUnavailable, g.err))
	}
	in, ok := g.intents[id]
	if !ok {
		return nil, apperr.Payment(ErrIntentNotFound.Error(), ErrIntentNotFound)
	}
	in.Metadata = copyMetadata(in.Metadata)
	return &in, nil
}

// Succeed 模拟用户完成支付
func (g *MemoryGateway) Succeed(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return false
	}
	in.Status = StatusSucceeded
	in.AmountReceived = in.Amount
	g.intents[id] = in
	return true
}

// Put 直接写入一个支付意图
func (g *MemoryGateway) Put(in Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in.Metadata = copyMetadata(in.Metadata)
	g.intents[in.ID] = in
}

// SetError 之后的调用都返回该错误，传 nil 恢复
func (g *MemoryGateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
