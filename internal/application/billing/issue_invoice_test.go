package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/arca"
)

// fakeAuthority simula ARCA: lleva la numeración por serie y detecta
// lecturas duplicadas o envíos superpuestos.
type fakeAuthority struct {
	mu        sync.Mutex
	last      map[string]int64
	inFlight  bool
	overlaps  int
	submitted []int64

	globalReject bool
	rejectDetail bool
	seqErr       error
}

func key(pos int, dt fiscal.DocumentType) string { return fmt.Sprintf("%d/%s", pos, dt) }

func (f *fakeAuthority) LastAuthorized(_ context.Context, pos int, dt fiscal.DocumentType) (int64, error) {
	if f.seqErr != nil {
		return 0, f.seqErr
	}
	f.mu.Lock()
	last := f.last[key(pos, dt)]
	f.mu.Unlock()
	// Ventana entre lectura y envío: si dos emisiones corren en paralelo,
	// ambas leerían acá el mismo último número.
	time.Sleep(time.Millisecond)
	return last, nil
}

func (f *fakeAuthority) RequestAuthorization(_ context.Context, sub arca.Submission) (*fiscal.AuthorizationResult, error) {
	f.mu.Lock()
	if f.inFlight {
		f.overlaps++
	}
	f.inFlight = true
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if f.globalReject {
		return nil, &fiscal.AuthorizationError{
			PointOfSale:  sub.Request.PointOfSale,
			DocumentType: sub.Totals.DocumentType,
			Errors:       []fiscal.Observation{{Code: 10016, Message: "numero ya registrado"}},
		}
	}

	k := key(sub.Request.PointOfSale, sub.Totals.DocumentType)
	if sub.Number != f.last[k]+1 {
		return nil, fmt.Errorf("numero fuera de secuencia: %d, esperado %d", sub.Number, f.last[k]+1)
	}
	f.last[k] = sub.Number
	f.submitted = append(f.submitted, sub.Number)

	result := &fiscal.AuthorizationResult{
		PointOfSale:    sub.Request.PointOfSale,
		DocumentType:   sub.Totals.DocumentType,
		DocumentNumber: sub.Number,
	}
	if f.rejectDetail {
		result.Outcome = fiscal.OutcomeRejected
		result.Observations = []fiscal.Observation{{Code: 10048, Message: "importe no coincide"}}
		return result, nil
	}
	result.Outcome = fiscal.OutcomeApproved
	result.AuthorizationCode = fmt.Sprintf("75%012d", sub.Number)
	result.AuthorizationExpiry = time.Now().AddDate(0, 0, 10)
	return result, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*billing.IssuedInvoice
	err   error
}

func (s *fakeStore) Save(_ context.Context, inv *billing.IssuedInvoice) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, inv)
	return nil
}

type fakeRenderer struct{ err error }

func (r *fakeRenderer) Render(context.Context, *billing.IssuedInvoice, []fiscal.LineItem) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func newUseCase(authority *fakeAuthority, store *fakeStore, renderer billing.InvoiceRenderer) *billing.IssueInvoiceUseCase {
	return billing.NewIssueInvoiceUseCase(authority, authority, store, renderer, zerolog.Nop())
}

func testRequest() fiscal.InvoiceRequest {
	return fiscal.InvoiceRequest{
		PointOfSale: 3,
		Buyer:       fiscal.Buyer{FiscalCategory: "CF", Name: "Consumidor Final"},
		LineItems: []fiscal.LineItem{{
			Description:    "Alquiler de volquete",
			Quantity:       decimal.NewFromInt(1),
			UnitPriceGross: decimal.RequireFromString("100.00"),
		}},
		IssueDate: time.Now(),
	}
}

// Propiedad de serialización: N emisiones concurrentes para la misma serie
// producen N números distintos, consecutivos y sin huecos.
func TestIssue_NumeracionSerializada(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}}
	store := &fakeStore{}
	uc := newUseCase(authority, store, nil)

	const n = 25
	results := make([]*billing.IssueResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = uc.Issue(context.Background(), testRequest())
		}(i)
	}
	wg.Wait()

	numbers := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		numbers = append(numbers, results[i].Invoice.Number)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	for i, num := range numbers {
		assert.EqualValues(t, i+1, num, "la numeración debe ser consecutiva y sin huecos")
	}
	assert.Zero(t, authority.overlaps, "los envíos a la autoridad no deben superponerse")
	assert.Len(t, store.saved, n)
}

// Series distintas no se bloquean entre sí y numeran por separado.
func TestIssue_SeriesIndependientes(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}}
	store := &fakeStore{}
	uc := newUseCase(authority, store, nil)

	reqC := testRequest()
	reqA := testRequest()
	reqA.Buyer = fiscal.Buyer{TaxID: "20123456789", FiscalCategory: "RI", Name: "Cliente SA"}
	reqA.LineItems[0].UnitPriceNet = decimal.RequireFromString("50.00")

	resC, err := uc.Issue(context.Background(), reqC)
	require.NoError(t, err)
	resA, err := uc.Issue(context.Background(), reqA)
	require.NoError(t, err)

	assert.EqualValues(t, 1, resC.Invoice.Number)
	assert.EqualValues(t, 1, resA.Invoice.Number)
	assert.Equal(t, fiscal.DocumentTypeC, resC.Invoice.DocumentType)
	assert.Equal(t, fiscal.DocumentTypeA, resA.Invoice.DocumentType)
}

func TestIssue_AprobadoPersisteYRenderiza(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}}
	store := &fakeStore{}
	uc := newUseCase(authority, store, &fakeRenderer{})

	result, err := uc.Issue(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Authorization.Approved())
	assert.NotEmpty(t, result.PDF)

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Equal(t, billing.InvoiceStatusIssued, saved.Status)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, result.Authorization.AuthorizationCode, saved.CAE)
	assert.Equal(t, "100.00", saved.Gross.StringFixed(2))
	assert.Equal(t, "82.64", saved.Net.StringFixed(2))
}

// El rechazo por observaciones es un resultado de negocio: se persiste
// como RECHAZADO y no produce error ni PDF.
func TestIssue_RechazoEsResultadoDeNegocio(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}, rejectDetail: true}
	store := &fakeStore{}
	uc := newUseCase(authority, store, &fakeRenderer{})

	result, err := uc.Issue(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, fiscal.OutcomeRejected, result.Authorization.Outcome)
	assert.Nil(t, result.PDF)
	require.Len(t, store.saved, 1)
	assert.Equal(t, billing.InvoiceStatusRejected, store.saved[0].Status)
	assert.Empty(t, store.saved[0].CAE)
	require.Len(t, store.saved[0].Observations, 1)
	assert.Equal(t, 10048, store.saved[0].Observations[0].Code)
}

// El rechazo global es un error: no se persiste nada y el caller no debe
// considerar consumido el número.
func TestIssue_RechazoGlobalNoConsumeNumero(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}, globalReject: true}
	store := &fakeStore{}
	uc := newUseCase(authority, store, nil)

	result, err := uc.Issue(context.Background(), testRequest())
	assert.Nil(t, result)

	var authzErr *fiscal.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	assert.Empty(t, store.saved, "un rechazo global no debe persistir comprobante")
	assert.Empty(t, authority.submitted)

	// La serie sigue utilizable: el siguiente intento usa el mismo número.
	authority.globalReject = false
	ok, err := uc.Issue(context.Background(), testRequest())
	require.NoError(t, err)
	assert.EqualValues(t, 1, ok.Invoice.Number)
}

// La falla del PDF no revierte la autorización ya persistida.
func TestIssue_FallaDeRenderNoRevierte(t *testing.T) {
	authority := &fakeAuthority{last: map[string]int64{}}
	store := &fakeStore{}
	uc := newUseCase(authority, store, &fakeRenderer{err: fmt.Errorf("sin fuente helvetica")})

	result, err := uc.Issue(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Authorization.Approved())
	assert.Nil(t, result.PDF)
	assert.Len(t, store.saved, 1)
}

func TestIssue_ErrorDeNumeracionSePropaga(t *testing.T) {
	seqErr := &fiscal.SequenceError{Kind: fiscal.SequenceTransport, PointOfSale: 3, DocumentType: fiscal.DocumentTypeC}
	authority := &fakeAuthority{last: map[string]int64{}, seqErr: seqErr}
	uc := newUseCase(authority, &fakeStore{}, nil)

	_, err := uc.Issue(context.Background(), testRequest())
	var got *fiscal.SequenceError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, fiscal.SequenceTransport, got.Kind)
}

func TestIssue_ValidacionesBasicas(t *testing.T) {
	uc := newUseCase(&fakeAuthority{last: map[string]int64{}}, &fakeStore{}, nil)

	req := testRequest()
	req.LineItems = nil
	_, err := uc.Issue(context.Background(), req)
	assert.Error(t, err)

	req = testRequest()
	req.PointOfSale = 0
	_, err = uc.Issue(context.Background(), req)
	assert.Error(t, err)
}
