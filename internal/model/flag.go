package model

import (
	"context"
	"strconv"

	"github.com/fachebot/wecom-sync-bot/internal/store"
)

// FlagModel 一次性标记与账号安全开关
type FlagModel struct {
	kv store.KV
}

func NewFlagModel(kv store.KV) *FlagModel {
	return &FlagModel{kv: kv}
}

// GroupInviteDone 群邀请是否已处理
func (m *FlagModel) GroupInviteDone(ctx context.Context, groupName string) (bool, error) {
	value, ok, err := m.kv.Get(ctx, NamespaceGroupInvite, groupName)
	if err != nil || !ok {
		return false, err
	}
	return value != "0", nil
}

func (m *FlagModel) MarkGroupInvite(ctx context.Context, groupName string) error {
	return m.kv.Put(ctx, NamespaceGroupInvite, groupName, "1")
}

// RealName 账号是否已实名，未记录视为已实名
func (m *FlagModel) RealName(ctx context.Context) (bool, error) {
	return m.getBool(ctx, NamespaceMyInfo, "realName", true)
}

func (m *FlagModel) SetRealName(ctx context.Context, v bool) error {
	return m.kv.Put(ctx, NamespaceMyInfo, "realName", strconv.FormatBool(v))
}

// Risk 环境检测是否异常，未记录视为正常
func (m *FlagModel) Risk(ctx context.Context) (bool, error) {
	return m.getBool(ctx, NamespaceDefault, "risk", false)
}

func (m *FlagModel) SetRisk(ctx context.Context, v bool) error {
	return m.kv.Put(ctx, NamespaceDefault, "risk", strconv.FormatBool(v))
}

func (m *FlagModel) getBool(ctx context.Context, namespace, key string, def bool) (bool, error) {
	value, ok, err := m.kv.Get(ctx, namespace, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, nil
	}
	return b, nil
}
