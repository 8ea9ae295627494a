package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/models"
	"github.com/sevacare/facility_backend/utils"
	"github.com/sirupsen/logrus"
)

func closeMonthRedisKey(month int, year int) string {
	return fmt.Sprintf("lock:ledger-close:%04d-%02d", year, month)
}

// CloseMonth runs the month close behind a Redis lock for the period.
// Redis is best-effort: when it is unavailable the close still runs and
// models.CloseMonth serializes on the MySQL advisory lock. A lock held by
// another close is a conflict.
func CloseMonth(ctx context.Context, month int, year int) (*models.CloseMonthResult, error) {
	if _, err := models.NewPeriod(month, year); err != nil {
		return nil, err
	}
	logger := config.GetLogger()
	key := closeMonthRedisKey(month, year)

	var lock *redislock.Lock
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"field": "CloseMonth",
			"key":   key,
		}).Warn("redis lock not ready; proceeding without redis lock")
	} else {
		var err error
		lock, err = locker.Obtain(ctx, key, config.CloseMonthTimeout(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, utils.NewConflictError(err, "close of %04d-%02d is already in progress", year, month)
		} else if err != nil {
			logger.WithFields(logrus.Fields{
				"field": "CloseMonth",
				"key":   key,
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
			lock = nil
		}
	}
	defer func() {
		if lock == nil {
			return
		}
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{
				"field": "CloseMonth",
				"key":   key,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}()

	return models.CloseMonth(ctx, month, year)
}
