package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

// matchKind names the column a CSV row is matched by.
type matchKind int

const (
	matchByID matchKind = iota
	matchByCode
	matchByName
)

// csvMatchers lists key columns in precedence order. A row is matched by the
// first matcher whose column is present and non-empty; later columns are ignored.
var csvMatchers = []struct {
	kind    matchKind
	headers []string
}{
	{kind: matchByID, headers: []string{"screen_id"}},
	{kind: matchByCode, headers: []string{"code"}},
	{kind: matchByName, headers: []string{"name", "screen_name"}},
}

// rowKey is the single key a CSV row is matched by.
type rowKey struct {
	kind  matchKind
	value string
}

const utf8BOM = "\ufeff"

// parseMembersCSV reads the header and returns one key per data row. Rows whose
// key columns are all blank are ignored and not counted.
func parseMembersCSV(text string) ([]rowKey, int, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "csv is empty")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "csv could not be parsed")
	}

	positions := make(map[matchKind]int, len(csvMatchers))
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, utf8BOM)))
		for _, m := range csvMatchers {
			if _, taken := positions[m.kind]; taken {
				continue
			}
			for _, h := range m.headers {
				if name == h {
					positions[m.kind] = i
				}
			}
		}
	}
	if len(positions) == 0 {
		return nil, 0, appErrors.WithDetails(appErrors.ErrValidation, "csv header must include screen_id, code or name",
			map[string]interface{}{"header": header})
	}

	var keys []rowKey
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rows, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "csv could not be parsed")
		}
		if key, ok := keyForRecord(record, positions); ok {
			keys = append(keys, key)
			rows++
		}
	}
	return keys, rows, nil
}

func keyForRecord(record []string, positions map[matchKind]int) (rowKey, bool) {
	for _, m := range csvMatchers {
		pos, ok := positions[m.kind]
		if !ok || pos >= len(record) {
			continue
		}
		if value := strings.TrimSpace(record[pos]); value != "" {
			return rowKey{kind: m.kind, value: value}, true
		}
	}
	return rowKey{}, false
}

// screenIndex resolves row keys against the screens found for a batch.
type screenIndex struct {
	byID   map[string]struct{}
	byCode map[string][]string
	byName map[string][]string
}

func newScreenIndex(byID, byCode, byName []models.Screen) *screenIndex {
	idx := &screenIndex{
		byID:   make(map[string]struct{}, len(byID)),
		byCode: make(map[string][]string, len(byCode)),
		byName: make(map[string][]string, len(byName)),
	}
	for _, s := range byID {
		idx.byID[s.ID] = struct{}{}
	}
	for _, s := range byCode {
		key := strings.ToLower(s.Code)
		idx.byCode[key] = append(idx.byCode[key], s.ID)
	}
	for _, s := range byName {
		if s.Name == nil {
			continue
		}
		key := strings.ToLower(*s.Name)
		idx.byName[key] = append(idx.byName[key], s.ID)
	}
	return idx
}

// resolve returns the screen id for key. More than one candidate is never resolved.
func (idx *screenIndex) resolve(key rowKey) (string, bool) {
	var candidates []string
	switch key.kind {
	case matchByID:
		if _, ok := idx.byID[key.value]; ok {
			return key.value, true
		}
		return "", false
	case matchByCode:
		candidates = idx.byCode[strings.ToLower(key.value)]
	case matchByName:
		candidates = idx.byName[strings.ToLower(key.value)]
	}
	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0], true
}

// ReconcileCSV adds the screens listed in a CSV upload to the group. Rows that
// match no screen, or match more than one, are reported rather than failing the batch.
func (s *MembershipService) ReconcileCSV(ctx context.Context, groupID, text string, actor *models.JWTClaims) (*models.CSVReconcileResult, error) {
	if err := ensureCanManage(actor); err != nil {
		return nil, err
	}
	group, err := s.writableGroup(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}

	keys, rows, err := parseMembersCSV(text)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCSVRows(rows)

	idx, err := s.indexScreens(ctx, group.OrgID, keys)
	if err != nil {
		return nil, err
	}

	result := &models.CSVReconcileResult{NotFoundItems: []string{}}
	seen := make(map[string]struct{}, len(keys))
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id, ok := idx.resolve(key)
		if !ok {
			result.NotFound++
			result.NotFoundItems = append(result.NotFoundItems, key.value)
			continue
		}
		if _, dup := seen[id]; dup {
			result.Skipped++
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	added, err := s.insert(ctx, group.ID, ids, actor)
	if err != nil {
		return nil, err
	}
	result.Added = len(added)
	result.Skipped += len(ids) - len(added)

	s.metrics.RecordMembershipChange("csv", MembershipAdded, result.Added)
	s.metrics.RecordMembershipChange("csv", MembershipSkipped, result.Skipped)
	s.metrics.RecordMembershipChange("csv", MembershipNotFound, result.NotFound)
	s.logger.Info("screen group csv reconciled",
		zap.String("group_id", group.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("rows", rows),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("not_found", result.NotFound),
	)
	return result, nil
}

func (s *MembershipService) indexScreens(ctx context.Context, orgID string, keys []rowKey) (*screenIndex, error) {
	values := map[matchKind][]string{}
	for _, key := range keys {
		values[key.kind] = append(values[key.kind], key.value)
	}

	byID, err := s.screens.FindByIDs(ctx, orgID, uniqueIDs(values[matchByID]))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up screens by id")
	}
	byCode, err := s.screens.FindByCodes(ctx, orgID, uniqueIDs(values[matchByCode]))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up screens by code")
	}
	byName, err := s.screens.FindByNames(ctx, orgID, uniqueIDs(values[matchByName]))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up screens by name")
	}
	return newScreenIndex(byID, byCode, byName), nil
}
