package auth

import (
	"context"
	"testing"
	"time"
)

// ============ 内存黑名单测试 ============

func TestMemoryBlacklist_AddContains(t *testing.T) {
	b := NewMemoryBlacklist()
	ctx := context.Background()

	if err := b.Add(ctx, "token-a", time.Minute); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}

	got, err := b.Contains(ctx, "token-a")
	if err != nil {
		t.Fatalf("Contains 失败: %v", err)
	}
	if !got {
		t.Error("已加入的令牌应命中黑名单")
	}

	got, _ = b.Contains(ctx, "token-b")
	if got {
		t.Error("未加入的令牌不应命中黑名单")
	}
}

func TestMemoryBlacklist_TTLExpiry(t *testing.T) {
	b := NewMemoryBlacklist()
	ctx := context.Background()

	// 条目只需要活到令牌自然过期
	_ = b.Add(ctx, "short-lived", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, _ := b.Contains(ctx, "short-lived")
	if got {
		t.Error("过期条目不应再命中")
	}
}

func TestMemoryBlacklist_NonPositiveTTL(t *testing.T) {
	b := NewMemoryBlacklist()
	ctx := context.Background()

	// 已自然过期的令牌无需入黑名单
	_ = b.Add(ctx, "expired", 0)
	got, _ := b.Contains(ctx, "expired")
	if got {
		t.Error("TTL<=0 的条目不应入黑名单")
	}
}
