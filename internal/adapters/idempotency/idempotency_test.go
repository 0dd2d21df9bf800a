package idempotency_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/surgilog/internal/adapters/idempotency"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryCache(t *testing.T) {
	Convey("Given a new memory cache", t, func() {
		ctx := context.Background()
		c := idempotency.NewMemoryCache()

		Convey("When a key is claimed for the first time", func() {
			id, state := c.Claim(ctx, "k1")

			Convey("Then the caller owns it", func() {
				So(state, ShouldEqual, idempotency.Claimed)
				So(id, ShouldBeEmpty)
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("And it is claimed again before completion", func() {
				_, state := c.Claim(ctx, "k1")

				Convey("Then it is in flight", func() {
					So(state, ShouldEqual, idempotency.InFlight)
				})
			})

			Convey("And it is completed", func() {
				c.Complete(ctx, "k1", "rec-7")
				id, state := c.Claim(ctx, "k1")

				Convey("Then later claims return the record id", func() {
					So(state, ShouldEqual, idempotency.Done)
					So(id, ShouldEqual, "rec-7")
					So(c.Size(), ShouldEqual, 1)
				})
			})

			Convey("And it is released", func() {
				c.Release(ctx, "k1")

				Convey("Then it can be claimed again", func() {
					_, state := c.Claim(ctx, "k1")
					So(state, ShouldEqual, idempotency.Claimed)
				})
			})
		})

		Convey("When the same header is sent by two actors", func() {
			_, s1 := c.Claim(ctx, idempotency.Key("res-1", "abc"))
			_, s2 := c.Claim(ctx, idempotency.Key("res-2", "abc"))

			Convey("Then both are claimed", func() {
				So(s1, ShouldEqual, idempotency.Claimed)
				So(s2, ShouldEqual, idempotency.Claimed)
			})
		})

		Convey("When releasing an unknown key", func() {
			c.Release(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(c.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded cache", t, func() {
		ctx := context.Background()
		c := idempotency.NewMemoryCache(idempotency.WithMaxSize(2))

		Convey("When more completed keys than the bound are claimed", func() {
			c.Claim(ctx, "k1")
			c.Complete(ctx, "k1", "rec-1")
			c.Claim(ctx, "k2")
			c.Complete(ctx, "k2", "rec-2")
			c.Claim(ctx, "k3")

			Convey("Then the oldest is evicted", func() {
				So(c.Size(), ShouldEqual, 2)
				_, state := c.Claim(ctx, "k1")
				So(state, ShouldEqual, idempotency.Claimed)
			})
		})
	})

	Convey("Given a cache bounded to one key", t, func() {
		ctx := context.Background()
		c := idempotency.NewMemoryCache(idempotency.WithMaxSize(1))

		Convey("When a second key is claimed while the first is in flight", func() {
			_, first := c.Claim(ctx, "k1")
			_, second := c.Claim(ctx, "k2")

			Convey("Then both are claimed and the first stays in flight", func() {
				So(first, ShouldEqual, idempotency.Claimed)
				So(second, ShouldEqual, idempotency.Claimed)
				So(c.Size(), ShouldEqual, 2)
				_, retry := c.Claim(ctx, "k1")
				So(retry, ShouldEqual, idempotency.InFlight)
			})

			Convey("And the first completes before a third claim", func() {
				c.Complete(ctx, "k1", "rec-1")
				c.Claim(ctx, "k3")

				Convey("Then the completed key is the one evicted", func() {
					_, k2 := c.Claim(ctx, "k2")
					So(k2, ShouldEqual, idempotency.InFlight)
					_, k1 := c.Claim(ctx, "k1")
					So(k1, ShouldEqual, idempotency.Claimed)
				})
			})
		})
	})

	Convey("Given concurrent claims on one key", t, func() {
		ctx := context.Background()
		c := idempotency.NewMemoryCache()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, state := c.Claim(ctx, "same"); state == idempotency.Claimed {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one caller owns it", func() {
			So(claimed, ShouldEqual, 1)
		})
	})

	Convey("Given an unbounded cache", t, func() {
		ctx := context.Background()
		c := idempotency.NewMemoryCache(idempotency.WithMaxSize(0))
		for i := 0; i < 100; i++ {
			c.Claim(ctx, fmt.Sprintf("k%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(c.Size(), ShouldEqual, 100)
		})
	})
}
