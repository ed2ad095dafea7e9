package resolver

//go:generate mockgen -source=resolver.go -destination=mocks/mocks.go -package=mocks VendorClient,CacheStore

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nestdesk/internal/tickets/metrics"
	"nestdesk/internal/tickets/models"
	"nestdesk/internal/tickets/repairdesk"
	"nestdesk/internal/tickets/resolver/mocks"
	"nestdesk/internal/tickets/store"
	dErrors "nestdesk/pkg/domain-errors"
)

const cachePath = "/var/cache/nestdesk/ticket_cache.json"

type ResolverSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	vendor   *mocks.MockVendorClient
	cache    *mocks.MockCacheStore
	metrics  *metrics.Metrics
	resolver *Resolver
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.vendor = mocks.NewMockVendorClient(s.ctrl)
	s.cache = mocks.NewMockCacheStore(s.ctrl)
	s.cache.EXPECT().Path().Return(cachePath).AnyTimes()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.resolver = New(Config{PageSize: 50}, s.vendor, s.cache, WithMetrics(s.metrics))
}

func (s *ResolverSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func unavailable(err error) error {
	return errors.Join(store.ErrCacheUnavailable, err)
}

func outage() error {
	return repairdesk.NewVendorError(repairdesk.ErrorProviderOutage, "tickets.get", "vendor unavailable: 503", nil)
}

func notFound() error {
	return repairdesk.NewVendorError(repairdesk.ErrorNotFound, "tickets.get", "not found", nil)
}

func (s *ResolverSuite) TestCacheHitSkipsVendor() {
	cached := models.Records{models.NewRecord("T-499", "1"), models.NewRecord("T-500", "88500")}

	for _, raw := range []string{"T-500", "500", "t500"} {
		s.Run(raw, func() {
			s.cache.EXPECT().Load(gomock.Any()).Return(cached, nil)

			res, err := s.resolver.Resolve(s.ctx, raw)
			s.Require().NoError(err)
			s.Equal(models.Resolution{
				TicketID:   models.MustParseTicketID("T-500"),
				InternalID: "88500",
				Found:      true,
				Tier:       models.TierCache,
			}, res)
		})
	}
	s.Equal(3.0, testutil.ToFloat64(s.metrics.ResolutionsTotal.WithLabelValues("cache", "true")))
}

func (s *ResolverSuite) TestDirectLookupAfterCacheMiss() {
	s.Run("cache unavailable", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(fs.ErrNotExist))
		s.vendor.EXPECT().GetTicket(gomock.Any(), "42").Return(&repairdesk.TicketDetail{InternalID: "9042", OrderID: "T-42"}, nil)

		res, err := s.resolver.Resolve(s.ctx, "T-42")
		s.Require().NoError(err)
		s.Equal(models.TierDirect, res.Tier)
		s.Equal(models.InternalID("9042"), res.InternalID)
	})

	s.Run("cache has other tickets", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{models.NewRecord("T-1", "1")}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "42").Return(&repairdesk.TicketDetail{InternalID: "9042", OrderID: "T-42"}, nil)

		res, err := s.resolver.Resolve(s.ctx, "42")
		s.Require().NoError(err)
		s.Equal(models.TierDirect, res.Tier)
	})
}

func (s *ResolverSuite) TestFallsThroughToListing() {
	listing := models.Records{models.NewRecord("T-7", "70"), models.NewRecord("T-9999", "99")}

	for name, directErr := range map[string]error{
		"transport failure": outage(),
		"not found":         notFound(),
		"malformed payload": repairdesk.NewVendorError(repairdesk.ErrorBadData, "tickets.get", "ticket payload has no id", nil),
	} {
		s.Run(name, func() {
			gomock.InOrder(
				s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil),
				s.vendor.EXPECT().GetTicket(gomock.Any(), "9999").Return(nil, directErr),
				s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil),
				s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil),
			)

			res, err := s.resolver.Resolve(s.ctx, "T-9999")
			s.Require().NoError(err)
			s.True(res.Found)
			s.Equal(models.TierListing, res.Tier)
			s.Equal(models.InternalID("99"), res.InternalID)
		})
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TierOutcomesTotal.WithLabelValues("direct", "transport_error")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.TierOutcomesTotal.WithLabelValues("direct", "miss")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.CacheRecords))
}

func (s *ResolverSuite) TestDirectLookupRejectsAnotherTicketsPayload() {
	// 50000 is T-1000's internal id, so the per-ticket endpoint answers for it.
	collision := &repairdesk.TicketDetail{InternalID: "50000", OrderID: "T-1000"}

	s.Run("mismatched order id falls through to listing", func() {
		listing := models.Records{models.NewRecord("T-1000", "50000")}
		gomock.InOrder(
			s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil),
			s.vendor.EXPECT().GetTicket(gomock.Any(), "50000").Return(collision, nil),
			s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil),
			s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil),
		)

		res, err := s.resolver.Resolve(s.ctx, "T-50000")
		s.Require().NoError(err)
		s.False(res.Found)
		s.Empty(res.InternalID)
	})

	s.Run("matching ticket found by listing instead", func() {
		listing := models.Records{models.NewRecord("T-1000", "50000"), models.NewRecord("T-50000", "812")}
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "50000").Return(collision, nil)
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil)
		s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil)

		res, err := s.resolver.Resolve(s.ctx, "T-50000")
		s.Require().NoError(err)
		s.Equal(models.TierListing, res.Tier)
		s.Equal(models.InternalID("812"), res.InternalID)
	})

	s.Run("payload without order id is not trusted", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "12").Return(&repairdesk.TicketDetail{InternalID: "9012"}, nil)
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(models.Records{}, nil)
		s.cache.EXPECT().Replace(gomock.Any(), models.Records{}).Return(nil)

		res, err := s.resolver.Resolve(s.ctx, "T-12")
		s.Require().NoError(err)
		s.False(res.Found)
	})

	s.Run("order id in another form still matches", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "12").Return(&repairdesk.TicketDetail{InternalID: "9012", OrderID: "12"}, nil)

		res, err := s.resolver.Resolve(s.ctx, "T-12")
		s.Require().NoError(err)
		s.Equal(models.TierDirect, res.Tier)
	})
	s.Equal(3.0, testutil.ToFloat64(s.metrics.TierOutcomesTotal.WithLabelValues("direct", "miss")))
}

func (s *ResolverSuite) TestVendorDownAtEveryTier() {
	listErr := repairdesk.NewVendorError(repairdesk.ErrorProviderOutage, "tickets.list", "vendor unavailable: 503", nil)
	expectOutage := func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(fs.ErrNotExist))
		s.vendor.EXPECT().GetTicket(gomock.Any(), "1").Return(nil, outage())
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(nil, listErr)
	}

	s.Run("resolve reports the vendor as unreachable", func() {
		expectOutage()

		res, err := s.resolver.Resolve(s.ctx, "T-1")
		s.ErrorIs(err, ErrVendorUnreachable)
		s.False(res.Found)
		s.Equal(models.TierNone, res.Tier)
	})

	s.Run("lookup maps it to unavailable, not not-found", func() {
		expectOutage()

		_, err := s.resolver.Lookup(s.ctx, "T-1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable), "got %v", err)
		s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("listing timeout maps to timeout", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(fs.ErrNotExist))
		s.vendor.EXPECT().GetTicket(gomock.Any(), "1").Return(nil, outage())
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(nil,
			repairdesk.NewVendorError(repairdesk.ErrorTimeout, "tickets.list", "request timeout", context.DeadlineExceeded))

		_, err := s.resolver.Lookup(s.ctx, "T-1")
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ResolverSuite) TestNotFoundIsNotAnError() {
	listing := models.Records{models.NewRecord("T-1", "1")}
	s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(errors.New("unexpected end of JSON input")))
	s.vendor.EXPECT().GetTicket(gomock.Any(), "404").Return(nil, notFound())
	s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil)
	s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil)

	res, err := s.resolver.Resolve(s.ctx, "T-404")
	s.Require().NoError(err)
	s.False(res.Found)
	s.Equal(models.TierNone, res.Tier)
	s.Empty(res.InternalID)
	s.Equal("T-404", res.TicketID.Display())
}

func (s *ResolverSuite) TestEmptyListingStillReplacesCache() {
	s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{models.NewRecord("T-5", "5")}, nil)
	s.vendor.EXPECT().GetTicket(gomock.Any(), "6").Return(nil, notFound())
	s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(models.Records{}, nil)
	s.cache.EXPECT().Replace(gomock.Any(), models.Records{}).Return(nil)

	res, err := s.resolver.Resolve(s.ctx, "6")
	s.Require().NoError(err)
	s.False(res.Found)
}

func (s *ResolverSuite) TestPartialListingIsScannedButNotCached() {
	partial := models.Records{models.NewRecord("T-3", "33")}
	listErr := repairdesk.NewVendorError(repairdesk.ErrorProviderOutage, "tickets.list", "vendor unavailable: 502", nil)

	s.Run("target in partial listing", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(fs.ErrNotExist))
		s.vendor.EXPECT().GetTicket(gomock.Any(), "3").Return(nil, outage())
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(partial, listErr)

		res, err := s.resolver.Resolve(s.ctx, "T-3")
		s.Require().NoError(err)
		s.Equal(models.InternalID("33"), res.InternalID)
		s.Equal(models.TierListing, res.Tier)
	})

	s.Run("target absent", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(nil, unavailable(fs.ErrNotExist))
		s.vendor.EXPECT().GetTicket(gomock.Any(), "4").Return(nil, outage())
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(partial, listErr)

		res, err := s.resolver.Resolve(s.ctx, "T-4")
		s.ErrorIs(err, ErrVendorUnreachable)
		s.ErrorIs(err, listErr)
		s.False(res.Found)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.TierOutcomesTotal.WithLabelValues("listing", "transport_error")))
	})
}

func (s *ResolverSuite) TestCacheWriteFailureKeepsResult() {
	listing := models.Records{models.NewRecord("T-8", "80")}
	s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
	s.vendor.EXPECT().GetTicket(gomock.Any(), "8").Return(nil, notFound())
	s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil)
	s.cache.EXPECT().Replace(gomock.Any(), listing).Return(store.ErrCacheWrite)

	res, err := s.resolver.Resolve(s.ctx, "T-8")
	s.Require().NoError(err)
	s.Equal(models.InternalID("80"), res.InternalID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheWriteFailuresTotal))
}

func (s *ResolverSuite) TestInvalidIdentifier() {
	_, err := s.resolver.Resolve(s.ctx, "TK-12")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ResolverSuite) TestCancelledContext() {
	s.Run("before any tier", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		_, err := s.resolver.Resolve(ctx, "T-1")
		s.ErrorIs(err, context.Canceled)
	})

	s.Run("during direct lookup", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "1").DoAndReturn(
			func(ctx context.Context, _ string) (*repairdesk.TicketDetail, error) {
				cancel()
				return nil, ctx.Err()
			})

		_, err := s.resolver.Resolve(ctx, "T-1")
		s.ErrorIs(err, context.Canceled)
	})
}

func (s *ResolverSuite) TestRefresh() {
	s.Run("replaces cache and reports count", func() {
		listing := models.Records{models.NewRecord("T-1", "1"), models.NewRecord("T-2", "2")}
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(listing, nil)
		s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil)

		n, err := s.resolver.Refresh(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("listing failure", func() {
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(nil,
			repairdesk.NewVendorError(repairdesk.ErrorTimeout, "tickets.list", "request timeout", context.DeadlineExceeded))

		_, err := s.resolver.Refresh(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("write failure", func() {
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(models.Records{}, nil)
		s.cache.EXPECT().Replace(gomock.Any(), models.Records{}).Return(store.ErrCacheWrite)

		_, err := s.resolver.Refresh(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.ErrorIs(err, store.ErrCacheWrite)
	})
}

func (s *ResolverSuite) TestLookup() {
	s.Run("not found becomes domain error", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{}, nil)
		s.vendor.EXPECT().GetTicket(gomock.Any(), "77").Return(nil, notFound())
		s.vendor.EXPECT().ListAll(gomock.Any(), 50).Return(models.Records{}, nil)
		s.cache.EXPECT().Replace(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.resolver.Lookup(s.ctx, "77")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.EqualError(err, "ticket T-77 not found")
	})

	s.Run("found", func() {
		s.cache.EXPECT().Load(gomock.Any()).Return(models.Records{models.NewRecord("T-77", "7")}, nil)

		res, err := s.resolver.Lookup(s.ctx, "T-77")
		s.Require().NoError(err)
		s.Equal(models.InternalID("7"), res.InternalID)
	})
}

func (s *ResolverSuite) TestConcurrentRefreshesAreCoalesced() {
	listing := models.Records{models.NewRecord("T-1", "1")}
	started := make(chan struct{})
	release := make(chan struct{})

	s.vendor.EXPECT().ListAll(gomock.Any(), 50).DoAndReturn(
		func(context.Context, int) (models.Records, error) {
			close(started)
			<-release
			return listing, nil
		}).Times(1)
	s.cache.EXPECT().Replace(gomock.Any(), listing).Return(nil).Times(1)

	const callers = 4
	counts := make([]int, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		counts[0], _ = s.resolver.Refresh(s.ctx)
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts[i], _ = s.resolver.Refresh(s.ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, n := range counts {
		s.Equal(1, n)
	}
}

func (s *ResolverSuite) TestWaiterCancellationDoesNotAbortSharedRefresh() {
	listing := models.Records{models.NewRecord("T-1", "1")}
	release := make(chan struct{})
	var listCtxErr error

	s.vendor.EXPECT().ListAll(gomock.Any(), 50).DoAndReturn(
		func(ctx context.Context, _ int) (models.Records, error) {
			<-release
			listCtxErr = ctx.Err()
			return listing, nil
		})
	done := make(chan struct{})
	s.cache.EXPECT().Replace(gomock.Any(), listing).DoAndReturn(
		func(context.Context, models.Records) error {
			close(done)
			return nil
		})

	ctx, cancel := context.WithCancel(s.ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := s.resolver.Refresh(ctx)
		errCh <- err
	}()
	cancel()
	s.True(dErrors.HasCode(<-errCh, dErrors.CodeTimeout))

	close(release)
	<-done
	s.NoError(listCtxErr)
}
