package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/datamodels/cart"
	"github.com/KumarG23/nep-back/internal/datamodels/order"
)

var (
	msgQuantityLimit = fmt.Sprintf("Ensure this value is less than or equal to %d.", cart.MaxLineQuantity)
	msgTotalTooLarge = fmt.Sprintf("Order total must not exceed %s.", order.MaxTotal.StringFixed(2))
)

// notFoundOr 把记录不存在翻译为 NotFound，其他错误带上操作名原样返回
func notFoundOr(err error, msg, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
