package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"nestdesk/internal/tickets/models"
	"nestdesk/pkg/testutil"
)

type FileCacheSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	cache *FileCache
}

func (s *FileCacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "nested", "ticket_cache.json")
	s.cache = New(s.path)
}

func (s *FileCacheSuite) writeFile(content string) {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.path), 0o700))
	s.Require().NoError(os.WriteFile(s.path, []byte(content), 0o600))
}

func (s *FileCacheSuite) readFile() string {
	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	return string(data)
}

func (s *FileCacheSuite) TestLoad() {
	s.Run("missing file is unavailable", func() {
		_, err := s.cache.Load(s.ctx)
		s.ErrorIs(err, ErrCacheUnavailable)
		s.ErrorIs(err, fs.ErrNotExist)
	})

	s.Run("array layout", func() {
		s.writeFile(`[{"summary":{"order_id":"T-1001","id":"88421"}}]`)
		records, err := s.cache.Load(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(models.InternalID("88421"), records[0].Summary.ID)
	})

	s.Run("items layout", func() {
		s.writeFile(`{"items":[{"summary":{"order_id":"T-7","id":7}}],"updated":"yesterday"}`)
		records, err := s.cache.Load(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(models.OrderID("T-7"), records[0].Summary.OrderID)
	})

	s.Run("empty array", func() {
		s.writeFile(`[]`)
		records, err := s.cache.Load(s.ctx)
		s.Require().NoError(err)
		s.Empty(records)
	})

	for name, content := range map[string]string{
		"truncated":     `[{"summary":{"order_id":"T-1`,
		"empty":         "  ",
		"scalar":        `"tickets"`,
		"object no key": `{"tickets":[]}`,
	} {
		s.Run("corrupt "+name, func() {
			s.writeFile(content)
			_, err := s.cache.Load(s.ctx)
			s.ErrorIs(err, ErrCacheUnavailable)
		})
	}

	s.Run("cancelled context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		_, err := s.cache.Load(ctx)
		s.ErrorIs(err, context.Canceled)
	})
}

func (s *FileCacheSuite) TestReplaceIsFullReplace() {
	s.writeFile(`{"items":[{"summary":{"order_id":"T-1","id":"1"}},{"summary":{"order_id":"T-2","id":"2"}}]}`)

	var fetched models.Records
	s.Require().NoError(json.Unmarshal([]byte(`[{"summary":{"order_id":"T-9999","id":"99"},"status":"Open"}]`), &fetched))
	s.Require().NoError(s.cache.Replace(s.ctx, fetched))

	s.JSONEq(`[{"summary":{"order_id":"T-9999","id":"99"},"status":"Open"}]`, s.readFile())
	s.NoFileExists(s.path + tmpSuffix)

	reloaded, err := s.cache.Load(s.ctx)
	s.Require().NoError(err)
	s.Len(reloaded, 1)
}

func (s *FileCacheSuite) TestReplaceNilWritesEmptyArray() {
	s.Require().NoError(s.cache.Replace(s.ctx, nil))
	s.JSONEq(`[]`, s.readFile())
}

func (s *FileCacheSuite) TestInterruptedReplaceKeepsOldContent() {
	old := `[{"summary":{"order_id":"T-1001","id":"88421"}}]`
	s.writeFile(old)

	crash := errors.New("power loss")
	s.cache.beforeRename = func() error {
		// The complete new content is on disk, only under the temp name.
		s.Equal(old, s.readFile())
		return crash
	}

	err := s.cache.Replace(s.ctx, models.Records{models.NewRecord("T-2", "2")})
	s.ErrorIs(err, ErrCacheWrite)
	s.ErrorIs(err, crash)
	s.Equal(old, s.readFile())
	s.NoFileExists(s.path + tmpSuffix)
}

func (s *FileCacheSuite) TestStaleTempFileIsIgnored() {
	old := `[{"summary":{"order_id":"T-1001","id":"88421"}}]`
	s.writeFile(old)
	s.Require().NoError(os.WriteFile(s.path+tmpSuffix, []byte(`[{"summary":`), 0o600))

	records, err := s.cache.Load(s.ctx)
	s.Require().NoError(err)
	s.Len(records, 1)

	s.Require().NoError(s.cache.Replace(s.ctx, models.Records{models.NewRecord("T-5", "5")}))
	s.JSONEq(`[{"summary":{"order_id":"T-5","id":"5"}}]`, s.readFile())
}

func (s *FileCacheSuite) TestReplaceFailsWhenDirectoryIsAFile() {
	blocker := filepath.Join(s.T().TempDir(), "blocker")
	s.Require().NoError(os.WriteFile(blocker, nil, 0o600))

	cache := New(filepath.Join(blocker, "ticket_cache.json"))
	err := cache.Replace(s.ctx, models.Records{})
	s.ErrorIs(err, ErrCacheWrite)
}

func (s *FileCacheSuite) TestConcurrentReplacesLeaveOneCompleteListing() {
	res := testutil.RunConcurrent(8, func(i int) error {
		records := models.Records{}
		for j := 0; j <= i; j++ {
			records = append(records, models.NewRecord("T-1", "1"))
		}
		return New(s.path).Replace(s.ctx, records)
	})
	s.EqualValues(8, res.Successes)

	records, err := s.cache.Load(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(records)
}

func TestFileCacheSuite(t *testing.T) {
	suite.Run(t, new(FileCacheSuite))
}
