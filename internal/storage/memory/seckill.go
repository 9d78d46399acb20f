package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type campaignState struct {
	campaign domain.Campaign
	winners  map[string]struct{}
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// SeckillStore — in-memory реализация стора flash-sale кампаний.
// Резервирование выполняется под одним мьютексом, что даёт ту же
// атомарность, что и серверный скрипт в redis.
type SeckillStore struct {
	mu        sync.Mutex
	campaigns map[string]*campaignState
	rates     map[string]*rateWindow

	rateLimit  int64
	rateWindow time.Duration
	now        func() time.Time
}

// NewSeckillStore создаёт стор с лимитом rateLimit запросов на пользователя
// в окно window. rateLimit <= 0 отключает rate limit.
func NewSeckillStore(rateLimit int64, window time.Duration) *SeckillStore {
	return &SeckillStore{
		campaigns:  make(map[string]*campaignState),
		rates:      make(map[string]*rateWindow),
		rateLimit:  rateLimit,
		rateWindow: window,
		now:        time.Now,
	}
}

func (s *SeckillStore) Reserve(ctx context.Context, productID, userID string) (domain.SeckillOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.rateLimit > 0 {
		key := productID + ":" + userID
		window, ok := s.rates[key]
		if !ok || !window.resetAt.After(now) {
			window = &rateWindow{resetAt: now.Add(s.rateWindow)}
			s.rates[key] = window
		}
		window.count++
		if window.count > s.rateLimit {
			return domain.SeckillRateLimited, nil
		}
	}

	state, ok := s.campaigns[productID]
	if !ok || !state.campaign.Active(now) {
		return domain.SeckillCampaignNotStarted, nil
	}
	if _, won := state.winners[userID]; won {
		return domain.SeckillAlreadyPurchased, nil
	}
	if state.campaign.StockRemaining <= 0 {
		return domain.SeckillOutOfStock, nil
	}

	state.campaign.StockRemaining--
	state.winners[userID] = struct{}{}
	return domain.SeckillReserved, nil
}

func (s *SeckillStore) Release(ctx context.Context, productID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.campaigns[productID]
	if !ok {
		return false, nil
	}
	if _, won := state.winners[userID]; !won {
		return false, nil
	}
	delete(state.winners, userID)
	state.campaign.StockRemaining++
	return true, nil
}

func (s *SeckillStore) InitCampaign(ctx context.Context, campaign domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	campaign.StockRemaining = campaign.TotalStock
	s.campaigns[campaign.ProductID] = &campaignState{
		campaign: campaign,
		winners:  make(map[string]struct{}),
	}
	return nil
}

func (s *SeckillStore) CampaignStatus(ctx context.Context, productID string) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.campaigns[productID]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	campaign := state.campaign
	campaign.WinnerCount = int64(len(state.winners))
	return campaign, nil
}

var _ domain.SeckillStore = (*SeckillStore)(nil)
