package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/pasarku/internal/actor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder   = "order"
	ObjectQuota   = "quota"
	ObjectCourier = "courier"
	ObjectStream  = "stream"
)

const (
	ActionOrderCreate         = "order.create"
	ActionOrderView           = "order.view"
	ActionOrderConfirm        = "order.confirm"
	ActionOrderDispatch       = "order.dispatch"
	ActionOrderDeliver        = "order.deliver"
	ActionOrderComplete       = "order.complete"
	ActionOrderCancel         = "order.cancel"
	ActionOrderReject         = "order.reject"
	ActionOrderSubmitProof    = "order.submit_proof"
	ActionOrderVerifyPayment  = "order.verify_payment"
	ActionOrderConfirmGateway = "order.confirm_gateway"

	ActionQuotaView    = "quota.view"
	ActionQuotaHistory = "quota.history"
	ActionQuotaAdjust  = "quota.adjust"
	ActionQuotaExpire  = "quota.expire"

	ActionCourierView           = "courier.view"
	ActionCourierAvailability   = "courier.set_availability"
	ActionCourierListCandidates = "courier.list_candidates"

	ActionStreamSubscribe = "stream.subscribe"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, a actor.Actor, object string, action string) error {
	if err := a.Validate(); err != nil {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := a.String()
	roleName := a.Role()
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:buyer", ObjectOrder, ActionOrderCreate},
		{"role:buyer", ObjectOrder, ActionOrderView},
		{"role:buyer", ObjectOrder, ActionOrderComplete},
		{"role:buyer", ObjectOrder, ActionOrderReject},
		{"role:buyer", ObjectOrder, ActionOrderSubmitProof},
		{"role:buyer", ObjectStream, ActionStreamSubscribe},

		{"role:merchant", ObjectOrder, ActionOrderView},
		{"role:merchant", ObjectOrder, ActionOrderConfirm},
		{"role:merchant", ObjectOrder, ActionOrderDispatch},
		{"role:merchant", ObjectOrder, ActionOrderDeliver},
		{"role:merchant", ObjectOrder, ActionOrderCancel},
		{"role:merchant", ObjectOrder, ActionOrderVerifyPayment},
		{"role:merchant", ObjectQuota, ActionQuotaView},
		{"role:merchant", ObjectQuota, ActionQuotaHistory},
		{"role:merchant", ObjectCourier, ActionCourierListCandidates},
		{"role:merchant", ObjectStream, ActionStreamSubscribe},

		{"role:courier", ObjectOrder, ActionOrderView},
		{"role:courier", ObjectOrder, ActionOrderDeliver},
		{"role:courier", ObjectCourier, ActionCourierView},
		{"role:courier", ObjectCourier, ActionCourierAvailability},
		{"role:courier", ObjectStream, ActionStreamSubscribe},

		{"role:admin", ObjectOrder, ActionOrderView},
		{"role:admin", ObjectOrder, ActionOrderConfirm},
		{"role:admin", ObjectOrder, ActionOrderDeliver},
		{"role:admin", ObjectOrder, ActionOrderCancel},
		{"role:admin", ObjectOrder, ActionOrderVerifyPayment},
		{"role:admin", ObjectQuota, ActionQuotaView},
		{"role:admin", ObjectQuota, ActionQuotaHistory},
		{"role:admin", ObjectQuota, ActionQuotaAdjust},
		{"role:admin", ObjectCourier, ActionCourierView},
		{"role:admin", ObjectCourier, ActionCourierListCandidates},
		{"role:admin", ObjectStream, ActionStreamSubscribe},

		// Automated sweeps and the gateway callback.
		{"role:system", ObjectOrder, ActionOrderView},
		{"role:system", ObjectOrder, ActionOrderCancel},
		{"role:system", ObjectOrder, ActionOrderComplete},
		{"role:system", ObjectOrder, ActionOrderConfirmGateway},
		{"role:system", ObjectQuota, ActionQuotaView},
		{"role:system", ObjectQuota, ActionQuotaExpire},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
