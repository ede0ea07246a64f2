package services

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
)

// Quote is the price of a video submission. Reward is paid per completed
// watch out of Escrow; BoostFee is a platform fee and is never refunded.
type Quote struct {
	Reward   int64 `json:"reward"`
	Escrow   int64 `json:"escrow"`
	BoostFee int64 `json:"boost_fee"`
	Total    int64 `json:"total"`
}

// EscrowService funds video escrow from the submitter's balance and returns
// what is left of it when a video is taken down.
type EscrowService struct {
	Ledger            ledger.Service
	BoostCostPerWatch int64
}

// NewEscrowService returns a new EscrowService.
func NewEscrowService(ledgerSvc ledger.Service, boostCostPerWatch int64) *EscrowService {
	return &EscrowService{Ledger: ledgerSvc, BoostCostPerWatch: boostCostPerWatch}
}

// Quote prices a submission at one coin per required watch second plus the
// boost surcharge per watch.
func (s *EscrowService) Quote(watchSeconds, requestedWatches, boost int) Quote {
	reward := int64(watchSeconds)
	escrow := reward * int64(requestedWatches)
	fee := int64(boost) * int64(requestedWatches) * s.BoostCostPerWatch
	return Quote{Reward: reward, Escrow: escrow, BoostFee: fee, Total: escrow + fee}
}

// Fund debits escrow plus boost fee from the owner. Call within a transaction.
func (s *EscrowService) Fund(ctx context.Context, tx pgx.Tx, v *models.Video) (*models.Transaction, error) {
	return s.Ledger.Debit(ctx, tx, ledger.Entry{
		UserID:    v.OwnerID,
		Type:      models.TxSpendCoins,
		Amount:    v.EscrowRemaining + v.BoostFee,
		Reason:    "video submission " + v.YouTubeID,
		Reference: "video:" + v.ID.String(),
	})
}

// Refund returns the unspent escrow to the owner. It returns nil when there
// is nothing left to refund. Call within a transaction.
func (s *EscrowService) Refund(ctx context.Context, tx pgx.Tx, v *models.Video) (*models.Transaction, error) {
	if v.EscrowRemaining <= 0 {
		return nil, nil
	}
	return s.Ledger.Credit(ctx, tx, ledger.Entry{
		UserID:    v.OwnerID,
		Type:      models.TxRefundCoins,
		Amount:    v.EscrowRemaining,
		Reason:    "escrow refund " + v.YouTubeID,
		Reference: "refund:" + v.ID.String(),
	})
}
