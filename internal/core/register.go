package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// Registration code prefixes.
const (
	prefixIndividual = "SR"
	prefixGroup      = "SRG"
	prefixImport     = "SRI"
	prefixPayment    = "PAY"
)

// groupMemberRules: members fall back to the PIC as emergency contact.
var groupMemberRules = registrantRules{requireDOB: true, requireIdentity: true}

// plannedParticipant is one participant with its price, ready to write.
type plannedParticipant struct {
	reg       Registrant
	base      int64
	addOn     int64
	earlyBird bool
	sequence  int
	freeSlot  bool
}

// recipient is who the notification collaborator writes to.
type recipient struct {
	name, email, phone string
}

// plan is everything one registration transaction writes.
type plan struct {
	op            string
	source        Source
	status        Status
	paymentStatus PaymentStatus
	category      Category
	codePrefix    string
	participants  []plannedParticipant
	group         *GroupRegistration
	total         int64
	to            recipient

	idempotencyKey string
	fingerprint    string
}

// RegisterIndividual validates, screens, prices and commits one runner.
func (s *Service) RegisterIndividual(ctx context.Context, req IndividualRequest) (*RegistrationResult, error) {
	const op = "register individual"
	ctx, span := tracer.Start(ctx, "core.RegisterIndividual")
	defer span.End()

	key := strings.TrimSpace(req.IdempotencyKey)
	var fp string
	if key != "" {
		var err error
		if fp, err = fingerprint(SourceIndividual, req.RegistrantInput); err != nil {
			return nil, fail(span, Internal(op, err))
		}
		res, found, err := s.replay(ctx, key, fp)
		if err != nil {
			return nil, fail(span, err)
		}
		if found {
			span.SetAttributes(attribute.Bool("replayed", true))
			return res, nil
		}
	}

	reg, errs := prepareRegistrant(req.RegistrantInput, "", "", interactiveRules, s.pricing, s.settings.EventDate)
	if len(errs) > 0 {
		return nil, fail(span, Invalid(op, errs...))
	}
	span.SetAttributes(attribute.String("category", string(reg.Category)))

	dup, err := CheckDuplicate(ctx, s.store, reg.Identity(), reg.Category, nil)
	if err != nil {
		return nil, fail(span, Internal(op, err))
	}
	if dup.IsDuplicate {
		return nil, fail(span, Duplicated(op, dup.Match))
	}

	quote, err := s.pricing.PriceIndividual(reg.Category, reg.JerseySize, s.pricing.IsEarlyBird(s.now()))
	if err != nil {
		return nil, fail(span, err)
	}

	p := &plan{
		op:            op,
		source:        SourceIndividual,
		status:        StatusPending,
		paymentStatus: PaymentPending,
		category:      reg.Category,
		codePrefix:    prefixIndividual,
		participants: []plannedParticipant{{
			reg:       reg,
			base:      quote.BasePrice,
			addOn:     quote.JerseyAddOn,
			earlyBird: quote.EarlyBird,
			sequence:  1,
		}},
		total:          quote.TotalPrice,
		to:             recipient{name: reg.FullName, email: reg.Email, phone: reg.Phone},
		idempotencyKey: key,
		fingerprint:    fp,
	}

	res, err := s.commit(ctx, p)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("registration_code", res.RegistrationCode))
	return res, nil
}

// RegisterGroup validates every member, screens the whole group, prices it
// and commits all members or none.
func (s *Service) RegisterGroup(ctx context.Context, req GroupRequest) (*RegistrationResult, error) {
	const op = "register group"
	ctx, span := tracer.Start(ctx, "core.RegisterGroup")
	defer span.End()
	span.SetAttributes(attribute.Int("members", len(req.Members)))

	key := strings.TrimSpace(req.IdempotencyKey)
	var fp string
	if key != "" {
		payload := req
		payload.IdempotencyKey = ""
		var err error
		if fp, err = fingerprint(SourceGroup, payload); err != nil {
			return nil, fail(span, Internal(op, err))
		}
		res, found, err := s.replay(ctx, key, fp)
		if err != nil {
			return nil, fail(span, err)
		}
		if found {
			span.SetAttributes(attribute.Bool("replayed", true))
			return res, nil
		}
	}

	minMembers, maxMembers := s.pricing.GroupBounds()
	fields := validateGroupHeader(req, len(req.Members), minMembers, maxMembers)

	category, err := s.pricing.ParseCategory(req.Category)
	if err != nil {
		fe := &fieldErrors{}
		fe.adopt(err, "category")
		fields = append(fields, fe.errs...)
	}

	picName := NormalizeName(req.PICName)
	picPhone := NormalizePhone(req.PICWhatsApp)

	members := make([]Registrant, 0, len(req.Members))
	if category != "" && len(req.Members) <= maxMembers {
		for i, in := range req.Members {
			reg, errs := prepareRegistrant(in, fmt.Sprintf("members[%d]", i), category, groupMemberRules, s.pricing, s.settings.EventDate)
			fields = append(fields, errs...)
			if reg.Emergency.Name == "" || reg.Emergency.Phone == "" {
				reg.Emergency = EmergencyContact{Name: picName, Phone: picPhone, Relation: "PIC"}
			}
			members = append(members, reg)
		}
	}
	if len(fields) > 0 {
		return nil, fail(span, Invalid(op, fields...))
	}

	batch := NewBatch()
	var matches []DuplicateMatch
	for i, m := range members {
		dup, err := CheckDuplicate(ctx, s.store, m.Identity(), category, batch)
		if err != nil {
			return nil, fail(span, Internal(op, err))
		}
		if dup.IsDuplicate {
			dup.Match.Row = i + 1
			matches = append(matches, dup.Match)
			continue
		}
		batch.Add(m.Identity(), category, MemberRef(i+1), i+1)
	}
	if len(matches) > 0 {
		return nil, fail(span, Duplicated(op, matches...))
	}

	sizes := make([]JerseySize, len(members))
	for i, m := range members {
		sizes[i] = m.JerseySize
	}
	quote, err := s.pricing.PriceGroup(category, sizes)
	if err != nil {
		return nil, fail(span, err)
	}

	group := &GroupRegistration{
		Name:             strings.Join(strings.Fields(req.CommunityName), " "),
		ContactName:      picName,
		ContactEmail:     NormalizeEmail(req.PICEmail),
		ContactPhone:     picPhone,
		Address:          strings.TrimSpace(req.Address),
		City:             strings.TrimSpace(req.City),
		Province:         strings.TrimSpace(req.Province),
		Category:         category,
		MemberCount:      len(members),
		UnitPrice:        quote.BasePrice,
		TotalBase:        quote.TotalBase,
		JerseyAddOnTotal: quote.JerseyAddOnTotal,
		PromoDiscount:    quote.PromoDiscount,
		FinalPrice:       quote.FinalPrice,
		FreeSlots:        quote.FreeSlots,
	}

	p := &plan{
		op:             op,
		source:         SourceGroup,
		status:         StatusPending,
		paymentStatus:  PaymentPending,
		category:       category,
		codePrefix:     prefixGroup,
		group:          group,
		total:          quote.FinalPrice,
		to:             recipient{name: group.ContactName, email: group.ContactEmail, phone: group.ContactPhone},
		idempotencyKey: key,
		fingerprint:    fp,
	}
	for i, mq := range quote.Members {
		p.participants = append(p.participants, plannedParticipant{
			reg:      members[i],
			base:     mq.BasePrice,
			addOn:    mq.JerseyAddOn,
			sequence: mq.Sequence,
			freeSlot: mq.FreeSlot,
		})
	}

	res, err := s.commit(ctx, p)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("registration_code", res.RegistrationCode))
	return res, nil
}

// commit runs p in one bounded transaction and translates store failures.
func (s *Service) commit(ctx context.Context, p *plan) (*RegistrationResult, error) {
	txCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.settings.TxTimeout > 0 {
		txCtx, cancel = context.WithTimeout(ctx, s.settings.TxTimeout)
	}
	defer cancel()

	var res *RegistrationResult
	err := s.runTx(txCtx, p.op, func(q Queries) error {
		r, err := s.writePlan(txCtx, q, p)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return s.commitError(ctx, p, err)
	}
	if res.Replayed {
		return res, nil
	}

	if p.idempotencyKey != "" {
		s.remember(p.idempotencyKey, p.fingerprint, res)
	}

	logging.FromContext(ctx).With(clientAttrs(ctx)...).Info("registration committed",
		"kind", p.source,
		"registration_code", res.RegistrationCode,
		"category", p.category,
		"bibs", res.BibNumbers,
		"total_price", res.TotalPrice,
	)
	return res, nil
}

// commitError maps a failed commit. A lost race on the idempotency key
// resolves to the winner's result, including when the winner's participant
// rows are what tripped the duplicate check.
func (s *Service) commitError(ctx context.Context, p *plan, err error) (*RegistrationResult, error) {
	if p.idempotencyKey != "" && lostKeyRace(err) {
		res, found, rerr := s.replay(ctx, p.idempotencyKey, p.fingerprint)
		if rerr != nil {
			return nil, rerr
		}
		if found {
			return res, nil
		}
	}

	if c, ok := uniqueConstraint(err); ok {
		switch c {
		case ConstraintActiveEmail, ConstraintActivePhone:
			field := "email"
			if c == ConstraintActivePhone {
				field = "phone"
			}
			return nil, Duplicated(p.op, DuplicateMatch{Field: field, MatchedAgainst: "a registration committed concurrently"})
		}
	}

	if KindOf(err) == KindInternal {
		logging.FromContext(ctx).Error("registration transaction failed",
			"op", p.op,
			"category", p.category,
			"error", err,
		)
		var e *Error
		if !errors.As(err, &e) {
			return nil, Internal(p.op, err)
		}
	}
	return nil, err
}

// lostKeyRace reports whether err is what a concurrent commit of the same
// idempotent request looks like from the losing side.
func lostKeyRace(err error) bool {
	if c, ok := uniqueConstraint(err); ok {
		switch c {
		case ConstraintIdempotencyKey, ConstraintActiveEmail, ConstraintActivePhone:
			return true
		}
		return false
	}
	return KindOf(err) == KindDuplicate
}

// writePlan performs every write of p through q. It runs once per attempt.
func (s *Service) writePlan(ctx context.Context, q Queries, p *plan) (*RegistrationResult, error) {
	now := s.now()

	if p.idempotencyKey != "" {
		res, found, err := replayInTx(ctx, q, p.idempotencyKey, p.fingerprint)
		if err != nil {
			return nil, err
		}
		if found {
			return res, nil
		}
	}

	var matches []DuplicateMatch
	for i, pp := range p.participants {
		dup, err := CheckDuplicate(ctx, q, pp.reg.Identity(), p.category, nil)
		if err != nil {
			return nil, err
		}
		if dup.IsDuplicate {
			if len(p.participants) > 1 {
				dup.Match.Row = i + 1
			}
			matches = append(matches, dup.Match)
		}
	}
	if len(matches) > 0 {
		return nil, Duplicated(p.op, matches...)
	}

	bibs, err := s.bibs.AllocateBatch(ctx, q, p.category, len(p.participants))
	if err != nil {
		return nil, err
	}

	res := &RegistrationResult{Kind: p.source, TotalPrice: p.total}
	pay := &Payment{
		ID:        uuid.NewString(),
		Code:      newCode(prefixPayment),
		Amount:    p.total,
		Status:    p.paymentStatus,
		ExpiresAt: now.Add(s.settings.PaymentExpiry),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.paymentStatus == PaymentSuccess {
		pay.PaidAt = &now
		pay.Method = "offline"
	}

	var groupID string
	if p.group != nil {
		g := *p.group
		g.ID = uuid.NewString()
		g.RegistrationCode = newCode(p.codePrefix)
		g.Status = p.status
		g.CreatedAt = now
		if err := q.InsertGroup(ctx, &g); err != nil {
			return nil, err
		}
		groupID = g.ID
		res.RegistrationCode = g.RegistrationCode
		pay.GroupID = g.ID
	}

	for i, pp := range p.participants {
		part := &Participant{
			ID:             uuid.NewString(),
			FullName:       pp.reg.FullName,
			Gender:         pp.reg.Gender,
			DateOfBirth:    pp.reg.DateOfBirth,
			Age:            pp.reg.Age,
			IdentityNumber: pp.reg.IdentityNumber,
			Email:          pp.reg.Email,
			Phone:          pp.reg.Phone,
			Address:        pp.reg.Address,
			Province:       pp.reg.Province,
			City:           pp.reg.City,
			Category:       p.category,
			BibName:        pp.reg.BibName,
			JerseySize:     pp.reg.JerseySize,
			BibNumber:      bibs[i],
			BasePrice:      pp.base,
			JerseyAddOn:    pp.addOn,
			TotalPrice:     pp.base + pp.addOn,
			EarlyBird:      pp.earlyBird,
			Status:         p.status,
			Source:         p.source,
			Emergency:      pp.reg.Emergency,
			MedicalInfo:    pp.reg.MedicalInfo,
			GroupID:        groupID,
			CreatedAt:      now,
		}
		if groupID != "" {
			part.RegistrationCode = memberCode(res.RegistrationCode, pp.sequence)
		} else {
			part.RegistrationCode = newCode(p.codePrefix)
			res.RegistrationCode = part.RegistrationCode
			pay.ParticipantID = part.ID
		}

		if err := q.InsertParticipant(ctx, part); err != nil {
			return nil, err
		}
		if groupID != "" {
			m := &GroupMember{
				GroupID:       groupID,
				ParticipantID: part.ID,
				Sequence:      pp.sequence,
				MemberCode:    part.RegistrationCode,
				FreeSlot:      pp.freeSlot,
			}
			if err := q.InsertGroupMember(ctx, m); err != nil {
				return nil, err
			}
			res.MemberCodes = append(res.MemberCodes, m.MemberCode)
		}
		if err := q.InsertRacePack(ctx, &RacePack{ID: uuid.NewString(), ParticipantID: part.ID, CreatedAt: now}); err != nil {
			return nil, err
		}
		res.BibNumbers = append(res.BibNumbers, part.BibNumber)
	}

	pay.RegistrationCode = res.RegistrationCode
	if err := q.InsertPayment(ctx, pay); err != nil {
		return nil, err
	}
	res.PaymentCode = pay.Code
	res.ExpiresAt = pay.ExpiresAt
	if pay.Status == PaymentPending {
		res.PaymentReferenceURL = s.paymentURL(pay.Code)
	}

	ev, err := newOutboxEvent(EventRegistrationCreated, res.RegistrationCode, RegistrationCreatedPayload{
		RegistrationCode: res.RegistrationCode,
		Kind:             p.source,
		Category:         p.category,
		RecipientName:    p.to.name,
		RecipientEmail:   p.to.email,
		RecipientPhone:   p.to.phone,
		BibNumbers:       res.BibNumbers,
		MemberCodes:      res.MemberCodes,
		TotalPrice:       res.TotalPrice,
		PaymentCode:      pay.Code,
		PaymentStatus:    pay.Status,
		PaymentURL:       res.PaymentReferenceURL,
		PaymentExpiresAt: pay.ExpiresAt,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := q.InsertOutboxEvent(ctx, ev); err != nil {
		return nil, err
	}

	if p.idempotencyKey != "" {
		rec := &IdempotencyRecord{Key: p.idempotencyKey, Fingerprint: p.fingerprint, Result: *res, CreatedAt: now}
		if err := q.InsertIdempotencyRecord(ctx, rec); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// GetRegistration returns the participant or group registered under code.
func (s *Service) GetRegistration(ctx context.Context, code string) (*RegistrationView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if p, err := s.store.GetParticipantByCode(ctx, code); err == nil {
		view := &RegistrationView{Participant: p}
		owner := code
		if p.GroupID != "" {
			g, err := s.store.GetGroupByID(ctx, p.GroupID)
			if err != nil {
				return nil, Internal("get registration", err)
			}
			owner = g.RegistrationCode
		}
		if pay, err := s.store.GetPaymentByRegistration(ctx, owner); err == nil {
			view.Payment = pay
		} else if KindOf(err) != KindNotFound {
			return nil, Internal("get registration", err)
		}
		return view, nil
	} else if KindOf(err) != KindNotFound {
		return nil, Internal("get registration", err)
	}

	g, err := s.store.GetGroupByCode(ctx, code)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, NotFound("registration", code)
		}
		return nil, Internal("get registration", err)
	}
	view := &RegistrationView{Group: g}
	if view.Members, err = s.store.ListGroupParticipants(ctx, g.ID); err != nil {
		return nil, Internal("get registration", err)
	}
	if view.GroupMembers, err = s.store.ListGroupMembers(ctx, g.ID); err != nil {
		return nil, Internal("get registration", err)
	}
	if pay, err := s.store.GetPaymentByRegistration(ctx, g.RegistrationCode); err == nil {
		view.Payment = pay
	} else if KindOf(err) != KindNotFound {
		return nil, Internal("get registration", err)
	}
	return view, nil
}
