package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/tgshop/internal/model"
)

// ProfileUpdate は顧客自身が変更できるプロフィール項目。nilの項目は変更しない。
type ProfileUpdate struct {
	FirstName *string        `json:"first_name"`
	LastName  *string        `json:"last_name"`
	Billing   *model.Address `json:"billing"`
}

// ProfileService は顧客プロフィールの参照・更新を提供する。
type ProfileService struct {
	dir Directory
}

// NewProfileService はProfileServiceを生成する。
func NewProfileService(dir Directory) *ProfileService {
	return &ProfileService{dir: dir}
}

// Get は顧客プロフィールを取得する。
func (s *ProfileService) Get(ctx context.Context, customerID int64) (*model.Customer, error) {
	c, err := s.dir.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%w: 顧客の取得に失敗しました: %w", ErrDirectory, err)
	}
	if c == nil {
		return nil, model.NewCustomerNotFoundError()
	}
	return c, nil
}

// Update は顧客プロフィールを部分更新する。更新項目がない場合はエラーを返す。
func (s *ProfileService) Update(ctx context.Context, customerID int64, in ProfileUpdate) (*model.Customer, error) {
	update := &model.CustomerUpdate{}
	empty := true

	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if name == "" {
			return nil, model.NewInvalidRequestError("first_name は1文字以上で指定してください")
		}
		update.FirstName = name
		empty = false
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		if name == "" {
			return nil, model.NewInvalidRequestError("last_name は1文字以上で指定してください")
		}
		update.LastName = name
		empty = false
	}
	if in.Billing != nil && *in.Billing != (model.Address{}) {
		billing := *in.Billing
		update.Billing = &billing
		empty = false
	}
	if empty {
		return nil, model.NewEmptyProfileUpdateError()
	}

	c, err := s.dir.UpdateCustomer(ctx, customerID, update)
	if err != nil {
		return nil, fmt.Errorf("%w: 顧客の更新に失敗しました: %w", ErrDirectory, err)
	}
	if c == nil {
		return nil, model.NewCustomerNotFoundError()
	}
	return c, nil
}
