package staking

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"stakeledger/core/types"
	"stakeledger/storage"
)

const (
	storeParamsKey           = "staking/params"
	storeTotalStakeKey       = "staking/total"
	storeStakeholderIndexKey = "staking/stakeholders/index"
	storeStakeholderKeyFmt   = "staking/stakeholders/%s"
	storePeriodCountKey      = "staking/periods/count"
	storePeriodKeyFmt        = "staking/periods/%020d"
)

// Store persists engine state in a key-value database and buffers the events
// engines emit. It satisfies both engineState and periodState; reads hand out
// copies so engine-local mutation never leaks into the store.
type Store struct {
	db storage.Database
	mu sync.RWMutex

	events []*types.Event
}

// NewStore wraps the database. The parameter set is written on first use if
// the store is empty.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedParams struct {
	SignatureAddress   []byte
	BaseRate           []byte
	ExtraRatePerWeight []byte
	RateScale          []byte
	CompoundPeriod     uint64
	RewardPeriod       uint64
	Cooldown           uint64
	MaxWeight          uint64
}

type storedStakeholder struct {
	StakingBalance []byte
	NewStake       []byte
	Weight         uint64
	NewWeight      uint64
	HasNewWeight   bool
	StartDate      uint64
	InterestDate   uint64
	LastClaimed    uint64
	ReleaseAmount  []byte
}

type storedPeriod struct {
	Start                       uint64
	End                         uint64
	RewardPerPeriod             []byte
	TotalStakingBalance         []byte
	TotalWeightedStakingBalance []byte
	TotalNewStake               []byte
	TotalNewWeightedStake       []byte
	TotalWeightedRewardsClaimed []byte
}

func bigFromBytes(data []byte) *big.Int {
	if len(data) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(data)
}

func bigToBytes(value *big.Int) []byte {
	if value == nil {
		return nil
	}
	return value.Bytes()
}

// Params loads the stored parameter set, falling back to defaults when the
// store has never been written.
func (s *Store) Params() (Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(storeParamsKey))
	if err != nil {
		return DefaultParams(), nil
	}
	var stored storedParams
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return Params{}, err
	}
	p := Params{
		BaseRate:           bigFromBytes(stored.BaseRate),
		ExtraRatePerWeight: bigFromBytes(stored.ExtraRatePerWeight),
		RateScale:          bigFromBytes(stored.RateScale),
		CompoundPeriod:     stored.CompoundPeriod,
		RewardPeriod:       stored.RewardPeriod,
		Cooldown:           stored.Cooldown,
		MaxWeight:          stored.MaxWeight,
	}
	copy(p.SignatureAddress[:], stored.SignatureAddress)
	return p, nil
}

// PutParams stores the parameter set.
func (s *Store) PutParams(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedParams{
		SignatureAddress:   append([]byte(nil), p.SignatureAddress[:]...),
		BaseRate:           bigToBytes(p.BaseRate),
		ExtraRatePerWeight: bigToBytes(p.ExtraRatePerWeight),
		RateScale:          bigToBytes(p.RateScale),
		CompoundPeriod:     p.CompoundPeriod,
		RewardPeriod:       p.RewardPeriod,
		Cooldown:           p.Cooldown,
		MaxWeight:          p.MaxWeight,
	})
	if err != nil {
		return err
	}
	return s.db.Put([]byte(storeParamsKey), encoded)
}

func stakeholderKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf(storeStakeholderKeyFmt, hex.EncodeToString(addr[:])))
}

// GetStakeholder loads the record for an address. The second return reports
// whether the record exists.
func (s *Store) GetStakeholder(addr [20]byte) (*Stakeholder, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(stakeholderKey(addr))
	if err != nil {
		return nil, false, nil
	}
	var stored storedStakeholder
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, err
	}
	return &Stakeholder{
		StakingBalance: bigFromBytes(stored.StakingBalance),
		NewStake:       bigFromBytes(stored.NewStake),
		Weight:         stored.Weight,
		NewWeight:      stored.NewWeight,
		HasNewWeight:   stored.HasNewWeight,
		StartDate:      stored.StartDate,
		InterestDate:   stored.InterestDate,
		LastClaimed:    stored.LastClaimed,
		ReleaseAmount:  bigFromBytes(stored.ReleaseAmount),
	}, true, nil
}

// PutStakeholder stores the record and keeps the address index current.
func (s *Store) PutStakeholder(addr [20]byte, sh *Stakeholder) error {
	if sh == nil {
		return ErrInvalidParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedStakeholder{
		StakingBalance: bigToBytes(sh.StakingBalance),
		NewStake:       bigToBytes(sh.NewStake),
		Weight:         sh.Weight,
		NewWeight:      sh.NewWeight,
		HasNewWeight:   sh.HasNewWeight,
		StartDate:      sh.StartDate,
		InterestDate:   sh.InterestDate,
		LastClaimed:    sh.LastClaimed,
		ReleaseAmount:  bigToBytes(sh.ReleaseAmount),
	})
	if err != nil {
		return err
	}
	if err := s.db.Put(stakeholderKey(addr), encoded); err != nil {
		return err
	}
	return s.ensureIndexed(addr)
}

func (s *Store) ensureIndexed(addr [20]byte) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range index {
		if existing == addr {
			return nil
		}
	}
	index = append(index, addr)
	return s.saveIndex(index)
}

func (s *Store) loadIndex() ([][20]byte, error) {
	data, err := s.db.Get([]byte(storeStakeholderIndexKey))
	if err != nil {
		return nil, nil
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	index := make([][20]byte, len(raw))
	for i := range raw {
		copy(index[i][:], raw[i])
	}
	return index, nil
}

func (s *Store) saveIndex(index [][20]byte) error {
	raw := make([][]byte, len(index))
	for i := range index {
		raw[i] = append([]byte(nil), index[i][:]...)
	}
	encoded, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(storeStakeholderIndexKey), encoded)
}

// Stakeholders returns every indexed address.
func (s *Store) Stakeholders() ([][20]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadIndex()
}

// TotalStake loads the aggregate staked balance.
func (s *Store) TotalStake() (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(storeTotalStakeKey))
	if err != nil {
		return big.NewInt(0), nil
	}
	return bigFromBytes(data), nil
}

// PutTotalStake stores the aggregate staked balance.
func (s *Store) PutTotalStake(total *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(storeTotalStakeKey), bigToBytes(total))
}

func periodKey(index uint64) []byte {
	return []byte(fmt.Sprintf(storePeriodKeyFmt, index))
}

// PeriodCount returns the number of stored reward periods.
func (s *Store) PeriodCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodCount()
}

func (s *Store) periodCount() (uint64, error) {
	data, err := s.db.Get([]byte(storePeriodCountKey))
	if err != nil {
		return 0, nil
	}
	return bigFromBytes(data).Uint64(), nil
}

// GetPeriod loads the reward period at the given index.
func (s *Store) GetPeriod(index uint64) (*RewardPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPeriod(index)
}

func (s *Store) getPeriod(index uint64) (*RewardPeriod, error) {
	data, err := s.db.Get(periodKey(index))
	if err != nil {
		return nil, fmt.Errorf("staking: period %d not found", index)
	}
	var stored storedPeriod
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	return &RewardPeriod{
		Start:                       stored.Start,
		End:                         stored.End,
		RewardPerPeriod:             bigFromBytes(stored.RewardPerPeriod),
		TotalStakingBalance:         bigFromBytes(stored.TotalStakingBalance),
		TotalWeightedStakingBalance: bigFromBytes(stored.TotalWeightedStakingBalance),
		TotalNewStake:               bigFromBytes(stored.TotalNewStake),
		TotalNewWeightedStake:       bigFromBytes(stored.TotalNewWeightedStake),
		TotalWeightedRewardsClaimed: bigFromBytes(stored.TotalWeightedRewardsClaimed),
	}, nil
}

// PutPeriod stores the reward period at an existing index.
func (s *Store) PutPeriod(index uint64, period *RewardPeriod) error {
	if period == nil {
		return ErrInvalidParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putPeriod(index, period)
}

func (s *Store) putPeriod(index uint64, period *RewardPeriod) error {
	encoded, err := rlp.EncodeToBytes(storedPeriod{
		Start:                       period.Start,
		End:                         period.End,
		RewardPerPeriod:             bigToBytes(period.RewardPerPeriod),
		TotalStakingBalance:         bigToBytes(period.TotalStakingBalance),
		TotalWeightedStakingBalance: bigToBytes(period.TotalWeightedStakingBalance),
		TotalNewStake:               bigToBytes(period.TotalNewStake),
		TotalNewWeightedStake:       bigToBytes(period.TotalNewWeightedStake),
		TotalWeightedRewardsClaimed: bigToBytes(period.TotalWeightedRewardsClaimed),
	})
	if err != nil {
		return err
	}
	return s.db.Put(periodKey(index), encoded)
}

// AppendPeriod stores a new period after the last one and returns its index.
func (s *Store) AppendPeriod(period *RewardPeriod) (uint64, error) {
	if period == nil {
		return 0, ErrInvalidParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.periodCount()
	if err != nil {
		return 0, err
	}
	if err := s.putPeriod(count, period); err != nil {
		return 0, err
	}
	if err := s.db.Put([]byte(storePeriodCountKey), new(big.Int).SetUint64(count+1).Bytes()); err != nil {
		return 0, err
	}
	return count, nil
}

// AppendEvent buffers an emitted event until the next drain.
func (s *Store) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

// DrainEvents returns the buffered events and clears the buffer.
func (s *Store) DrainEvents() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.events
	s.events = nil
	return drained
}
