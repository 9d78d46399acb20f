package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

//go:embed lua/seckill_reserve.lua
var seckillReserveScript string

//go:embed lua/seckill_release.lua
var seckillReleaseScript string

// seckillStore реализует SeckillStore поверх Redis. Вся логика
// резервирования выполняется одним серверным скриптом, поэтому
// состояние кампании не может разойтись под гонкой.
type seckillStore struct {
	client *redis.Client

	reserveScript *redis.Script
	releaseScript *redis.Script

	rateLimit  int64
	rateWindow time.Duration
	now        func() time.Time
}

// NewSeckillStore создаёт Redis-стор кампаний. rateLimit <= 0 отключает
// rate limit на пользователя.
func NewSeckillStore(client *redis.Client, rateLimit int64, rateWindow time.Duration) domain.SeckillStore {
	return &seckillStore{
		client:        client,
		reserveScript: redis.NewScript(seckillReserveScript),
		releaseScript: redis.NewScript(seckillReleaseScript),
		rateLimit:     rateLimit,
		rateWindow:    rateWindow,
		now:           time.Now,
	}
}

func stockKey(productID string) string    { return "seckill:stock:" + productID }
func winnersKey(productID string) string  { return "seckill:winners:" + productID }
func metaKey(productID string) string     { return "seckill:meta:" + productID }
func rlKey(productID, user string) string { return "seckill:rl:" + productID + ":" + user }

func (s *seckillStore) Reserve(ctx context.Context, productID, userID string) (domain.SeckillOutcome, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := []string{
		stockKey(productID),
		winnersKey(productID),
		metaKey(productID),
		rlKey(productID, userID),
	}
	windowSeconds := int64(s.rateWindow / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	code, err := s.reserveScript.Run(opCtx, s.client, keys,
		userID, s.now().Unix(), s.rateLimit, windowSeconds,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("run seckill reserve script: %w", err)
	}

	return domain.SeckillOutcome(code), nil
}

func (s *seckillStore) Release(ctx context.Context, productID, userID string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := []string{stockKey(productID), winnersKey(productID)}
	code, err := s.releaseScript.Run(opCtx, s.client, keys, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("run seckill release script: %w", err)
	}

	return code == 1, nil
}

// InitCampaign записывает ключи кампании одним pipeline. Повторная
// инициализация намеренно сбрасывает winners и восстанавливает сток.
func (s *seckillStore) InitCampaign(ctx context.Context, campaign domain.Campaign) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var endUnix int64
	if !campaign.EndTime.IsZero() {
		endUnix = campaign.EndTime.Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(opCtx, stockKey(campaign.ProductID), campaign.TotalStock, 0)
	pipe.Del(opCtx, winnersKey(campaign.ProductID))
	pipe.HSet(opCtx, metaKey(campaign.ProductID), map[string]interface{}{
		"total_stock": campaign.TotalStock,
		"price_minor": campaign.PriceMinor,
		"currency":    campaign.Currency,
		"start_time":  campaign.StartTime.Unix(),
		"end_time":    endUnix,
	})
	if _, err := pipe.Exec(opCtx); err != nil {
		return fmt.Errorf("init seckill campaign: %w", err)
	}

	return nil
}

func (s *seckillStore) CampaignStatus(ctx context.Context, productID string) (domain.Campaign, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	stockCmd := pipe.Get(opCtx, stockKey(productID))
	winnersCmd := pipe.SCard(opCtx, winnersKey(productID))
	metaCmd := pipe.HGetAll(opCtx, metaKey(productID))
	if _, err := pipe.Exec(opCtx); err != nil && err != redis.Nil {
		return domain.Campaign{}, fmt.Errorf("read seckill campaign: %w", err)
	}

	stock, err := stockCmd.Int64()
	if err == redis.Nil {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("read seckill stock: %w", err)
	}

	meta := metaCmd.Val()
	campaign := domain.Campaign{
		ProductID:      productID,
		StockRemaining: stock,
		WinnerCount:    winnersCmd.Val(),
		TotalStock:     parseMetaInt(meta, "total_stock"),
		PriceMinor:     parseMetaInt(meta, "price_minor"),
		Currency:       meta["currency"],
	}
	if start := parseMetaInt(meta, "start_time"); start > 0 {
		campaign.StartTime = time.Unix(start, 0).UTC()
	}
	if end := parseMetaInt(meta, "end_time"); end > 0 {
		campaign.EndTime = time.Unix(end, 0).UTC()
	}

	return campaign, nil
}

func parseMetaInt(meta map[string]string, field string) int64 {
	v, err := strconv.ParseInt(meta[field], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ domain.SeckillStore = (*seckillStore)(nil)
