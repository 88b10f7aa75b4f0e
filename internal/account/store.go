package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/asset"
)

// Store is the account-persistence collaborator: load/save by account
// ID, list all known IDs. Save must be atomic per account; the store is
// authoritative for starting balance and must reject mutation of it
// after creation.
type Store interface {
	Load(ctx context.Context, accountID string) (*Account, error)
	Save(ctx context.Context, acct *Account) error
	ListIDs(ctx context.Context) ([]string, error)
}

// ErrNotFound is returned by Load when no account exists for the ID.
var ErrNotFound = errors.New("account: not found")

// wirePosition is the on-disk shape of one position: only what the spec
// says the store persists. Options are not stored separately — they
// re-parse from the symbol through asset.For at load time.
type wirePosition struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	AvgPrice    string  `json:"avg_price"`
	RealizedPnL string  `json:"realized_pnl"`
}

type wireAccount struct {
	ID              string         `json:"id"`
	Owner           string         `json:"owner"`
	StartingBalance string         `json:"starting_balance"`
	CashBalance     string         `json:"cash_balance"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	MaintenanceMargin string       `json:"maintenance_margin"`
	Positions       []wirePosition `json:"positions"`
}

func toWire(a *Account) (*wireAccount, error) {
	w := &wireAccount{
		ID:                a.ID,
		Owner:             a.Owner,
		StartingBalance:   a.StartingBalance.String(),
		CashBalance:       a.CashBalance.String(),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		MaintenanceMargin: a.MaintenanceMargin.String(),
	}
	for _, p := range a.PositionList() {
		w.Positions = append(w.Positions, wirePosition{
			Symbol:      p.Asset.Symbol(),
			Quantity:    p.Quantity,
			AvgPrice:    p.AvgPrice.String(),
			RealizedPnL: p.RealizedPnL.String(),
		})
	}
	return w, nil
}

func fromWire(w *wireAccount) (*Account, error) {
	startingBalance, err := decimal.NewFromString(w.StartingBalance)
	if err != nil {
		return nil, fmt.Errorf("account: decoding starting_balance: %w", err)
	}
	cashBalance, err := decimal.NewFromString(w.CashBalance)
	if err != nil {
		return nil, fmt.Errorf("account: decoding cash_balance: %w", err)
	}
	margin := decimal.Zero
	if w.MaintenanceMargin != "" {
		margin, err = decimal.NewFromString(w.MaintenanceMargin)
		if err != nil {
			return nil, fmt.Errorf("account: decoding maintenance_margin: %w", err)
		}
	}

	a := &Account{
		ID:                w.ID,
		Owner:             w.Owner,
		StartingBalance:   startingBalance,
		CashBalance:       cashBalance,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		MaintenanceMargin: margin,
		Positions:         make(map[string]*Position, len(w.Positions)),
	}
	for _, wp := range w.Positions {
		as, err := asset.For(wp.Symbol)
		if err != nil {
			return nil, fmt.Errorf("account: re-parsing position symbol %q: %w", wp.Symbol, err)
		}
		avgPrice, err := decimal.NewFromString(wp.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("account: decoding avg_price for %q: %w", wp.Symbol, err)
		}
		realized, err := decimal.NewFromString(wp.RealizedPnL)
		if err != nil {
			return nil, fmt.Errorf("account: decoding realized_pnl for %q: %w", wp.Symbol, err)
		}
		a.Positions[as.Symbol()] = &Position{
			Asset:       as,
			Quantity:    wp.Quantity,
			AvgPrice:    avgPrice,
			RealizedPnL: realized,
			CreatedAt:   a.UpdatedAt,
		}
	}
	return a, nil
}

// JSONStore persists one JSON file per account under a base directory,
// writing atomically (temp file + fsync + rename, falling back to
// copy+remove across filesystems) exactly as the teacher's JSON storage
// does, generalised from one shared file to one file per account ID.
type JSONStore struct {
	baseDir string
	mu      sync.Mutex // serialises directory-level operations (ListIDs during concurrent Save)
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(baseDir string) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("account: creating store directory: %w", err)
	}
	return &JSONStore{baseDir: baseDir}, nil
}

func (s *JSONStore) pathFor(accountID string) string {
	return filepath.Join(s.baseDir, accountID+".json")
}

func (s *JSONStore) Load(_ context.Context, accountID string) (*Account, error) {
	path := s.pathFor(accountID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: reading %s: %v", apperr.ErrPersistenceError, path, err)
	}
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", apperr.ErrPersistenceError, path, err)
	}
	a, err := fromWire(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceError, err)
	}
	return a, nil
}

func (s *JSONStore) Save(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := toWire(acct)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPersistenceError, err)
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding account: %v", apperr.ErrPersistenceError, err)
	}

	path := s.pathFor(acct.ID)
	if existing, err := os.ReadFile(path); err == nil {
		var prev wireAccount
		if json.Unmarshal(existing, &prev) == nil {
			if prevBalance, err := decimal.NewFromString(prev.StartingBalance); err == nil && !prevBalance.Equal(acct.StartingBalance) {
				return fmt.Errorf("%w: starting balance of account %s cannot change", apperr.ErrPersistenceError, acct.ID)
			}
		}
	}
	if err := atomicWriteFile(s.baseDir, path, data); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPersistenceError, err)
	}
	return nil
}

func (s *JSONStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", apperr.ErrPersistenceError, s.baseDir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// atomicWriteFile writes data to path by way of a temp file in dir,
// fsyncing the temp file before the rename and the parent directory
// after it, with a copy+remove fallback for cross-device renames (EXDEV).
func atomicWriteFile(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if isCrossDevice(err) {
			if cerr := copyFile(tmpPath, path); cerr != nil {
				return fmt.Errorf("cross-device copy fallback: %w", cerr)
			}
			os.Remove(tmpPath)
		} else {
			return fmt.Errorf("renaming temp file into place: %w", err)
		}
	}

	return syncParentDir(dir)
}

func isCrossDevice(err error) bool {
	return strings.Contains(err.Error(), "cross-device") || strings.Contains(err.Error(), "invalid cross-device link")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func syncParentDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening directory for fsync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		// Not all filesystems support directory fsync; tolerate it the
		// way the teacher's storage layer does.
		return nil
	}
	return nil
}
