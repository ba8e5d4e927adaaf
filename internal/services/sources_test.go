package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/modules/ingest"
	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/objectstore"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/types"
)

const ventasCSV = "Mes;Monto\nenero;$1.000\nfebrero;$2.500\n"

func TestUploadCSVLoadsTableAndDescribesIt(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	ctx := userCtx(owner)

	res, err := f.svc.Upload(ctx, "Ventas 2024.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	src := res.Source
	if src.Kind != types.SourceKindUploadedTable {
		t.Fatalf("kind = %s", src.Kind)
	}
	wantTable := ingest.TableName(owner, "Ventas 2024.csv")
	if src.LocalTable != wantTable || !tableExists(t, f.local, wantTable) {
		t.Fatalf("local table %q not created (got %q)", wantTable, src.LocalTable)
	}
	if res.Unit.Description != "Monthly sales by month." || !res.Unit.Indexed {
		t.Fatalf("unexpected unit: %+v", res.Unit)
	}
	if src.ObjectKey != objectstore.SourceKey(owner, src.ID, "Ventas 2024.csv") {
		t.Fatalf("object key = %q", src.ObjectKey)
	}

	vecs := f.vectors.upserts[owner.String()]
	if len(vecs) != 1 || vecs[0].ID != res.Unit.ID.String()+":0" || vecs[0].Metadata["asset_id"] != res.Unit.ID.String() {
		t.Fatalf("unexpected description vector: %+v", vecs)
	}

	units, err := f.assets.GetBySourceIDs(context.Background(), nil, []uuid.UUID{src.ID})
	if err != nil || len(units) != 1 {
		t.Fatalf("expected exactly one unit, got %d (%v)", len(units), err)
	}

	var monto string
	if err := f.local.QueryRow(`SELECT monto FROM "` + wantTable + `" WHERE mes = 'febrero'`).Scan(&monto); err != nil {
		t.Fatalf("query loaded table: %v", err)
	}
	if monto != "$2.500" {
		t.Fatalf("monto = %q", monto)
	}

	again, err := f.svc.Upload(ctx, "Ventas 2024.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if again.Source.LocalTable != wantTable+"_2" {
		t.Fatalf("second upload should get its own table, got %q", again.Source.LocalTable)
	}
}

func TestUploadFallsBackToProfileDescription(t *testing.T) {
	f := newSourceFixture(t)
	f.model.err = errors.New("model unavailable")
	ctx := userCtx(uuid.New())

	res, err := f.svc.Upload(ctx, "costos.csv", []byte("producto,costo\nsilla,10\nmesa,\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := `Table "costos.csv" with 2 rows and 2 columns: producto, costo.`
	if res.Unit.Description != want {
		t.Fatalf("description = %q, want %q", res.Unit.Description, want)
	}
}

func TestUploadDocumentIndexesChunks(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	text := strings.Repeat("La política de devoluciones permite cambios en 30 días. ", 100)

	res, err := f.svc.Upload(userCtx(owner), "politica.txt", []byte(text))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Source.Kind != types.SourceKindDocument || res.Source.LocalTable != "" {
		t.Fatalf("unexpected source: %+v", res.Source)
	}
	if res.Chunks < 2 {
		t.Fatalf("expected several chunks, got %d", res.Chunks)
	}
	vecs := f.vectors.upserts[owner.String()]
	if len(vecs) != res.Chunks {
		t.Fatalf("upserted %d vectors for %d chunks", len(vecs), res.Chunks)
	}
	for i, v := range vecs {
		if v.Metadata["asset_id"] != res.Unit.ID.String() || v.Metadata["text"] == "" {
			t.Fatalf("vector %d missing metadata: %+v", i, v.Metadata)
		}
	}
}

func TestUploadRejectsUnsupportedAndEmpty(t *testing.T) {
	f := newSourceFixture(t)
	ctx := userCtx(uuid.New())
	cases := map[string][]byte{
		"virus.exe": []byte("MZ"),
		"vacio.csv": nil,
		"blank.csv": []byte("\n\n"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.svc.Upload(ctx, name, data); !errors.Is(err, apierr.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
	if _, err := f.svc.Upload(context.Background(), "a.csv", []byte("a\n1\n")); !errors.Is(err, apierr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDeleteRemovesVectorsBeforeAnythingElse(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	res, err := f.svc.Upload(ctx, "ventas.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := f.svc.Delete(ctx, res.Source.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	want := []string{
		"vectors:" + owner.String() + ":" + res.Unit.ID.String(),
		"object:" + res.Source.ObjectKey,
	}
	if strings.Join(f.journal.entries, "|") != strings.Join(want, "|") {
		t.Fatalf("side effects = %v, want %v", f.journal.entries, want)
	}
	if tableExists(t, f.local, res.Source.LocalTable) {
		t.Fatalf("local table survived delete")
	}
	if _, err := f.sources.GetByID(context.Background(), nil, owner, res.Source.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("source survived delete: %v", err)
	}
	units, _ := f.assets.GetBySourceIDs(context.Background(), nil, []uuid.UUID{res.Source.ID})
	if len(units) != 0 {
		t.Fatalf("units survived delete: %d", len(units))
	}
}

func TestDeleteStopsWhenVectorDeleteFails(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	res, err := f.svc.Upload(ctx, "ventas.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	f.vectors.deleteErr = errors.New("index unavailable")

	if err := f.svc.Delete(ctx, res.Source.ID); err == nil {
		t.Fatalf("expected delete to fail")
	}
	if !tableExists(t, f.local, res.Source.LocalTable) {
		t.Fatalf("table dropped although vectors were kept")
	}
	if _, err := f.sources.GetByID(context.Background(), nil, owner, res.Source.ID); err != nil {
		t.Fatalf("source removed although vectors were kept: %v", err)
	}
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	f := newSourceFixture(t)
	res, err := f.svc.Upload(userCtx(uuid.New()), "ventas.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := f.svc.Delete(userCtx(uuid.New()), res.Source.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found for another owner, got %v", err)
	}
}

func newExternalSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "erp.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open external: %v", err)
	}
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE clientes (id INTEGER, nombre TEXT)`,
		`CREATE TABLE pedidos (id INTEGER, cliente_id INTEGER, total NUMERIC)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed external: %v", err)
		}
	}
	return path
}

func TestRegisterConnectionDescribesExternalDatabase(t *testing.T) {
	f := newSourceFixture(t)
	f.model.reply = "ERP database with customers and orders."
	owner := uuid.New()
	ctx := userCtx(owner)
	path := newExternalSQLite(t)

	// File databases are not registrable in production; allow them here to
	// stand in for a live external server.
	deps := f.deps
	deps.ConnectionDialects = append(sqlengine.RemoteDialects(), sqlengine.SQLite)
	f.svc = NewSourceService(deps)

	src, err := f.svc.RegisterConnection(ctx, ConnectionRequest{Name: "ERP", Type: "sqlite", Database: path})
	if err != nil {
		t.Fatalf("RegisterConnection: %v", err)
	}
	if src.Kind != types.SourceKindExternalDatabase {
		t.Fatalf("kind = %s", src.Kind)
	}
	profile, err := f.svc.Profile(ctx, src.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(profile.Units) != 1 || profile.Units[0].Indexed || profile.Units[0].Description != "ERP database with customers and orders." {
		t.Fatalf("unexpected units: %+v", profile.Units)
	}
	if !strings.Contains(string(profile.Units[0].StructuredMetadata), "clientes(id, nombre)") {
		t.Fatalf("schema summary missing: %s", profile.Units[0].StructuredMetadata)
	}

	cands, err := f.catalog.Candidates(ctx, owner)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	cand, ok := cands.Lookup(src.ID.String())
	if !ok {
		t.Fatalf("external source missing from candidates")
	}
	session, err := f.catalog.Open(ctx, owner, cand)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()
	schema, err := session.SchemaText(ctx)
	if err != nil || !strings.Contains(schema, "pedidos(") {
		t.Fatalf("schema = %q, %v", schema, err)
	}

	res, err := f.svc.Test(ctx, src.ID)
	if err != nil || !res.OK {
		t.Fatalf("Test = %+v, %v", res, err)
	}
}

func TestRegisterConnectionValidation(t *testing.T) {
	f := newSourceFixture(t)
	ctx := userCtx(uuid.New())
	cases := []struct {
		name string
		req  ConnectionRequest
	}{
		{"missing name", ConnectionRequest{Type: "postgres", Host: "db", Database: "x"}},
		{"unknown type", ConnectionRequest{Name: "x", Type: "oracle", Host: "db", Database: "x"}},
		{"missing host", ConnectionRequest{Name: "x", Type: "mysql", Database: "x"}},
		{"bad sheet url", ConnectionRequest{Name: "x", Type: "gsheet", Host: "https://example.com/sheet"}},
		{"local file database", ConnectionRequest{Name: "x", Type: "sqlite", Database: "/var/lib/app/app.db"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.RegisterConnection(ctx, tc.req); !errors.Is(err, apierr.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestRenameAndList(t *testing.T) {
	f := newSourceFixture(t)
	ctx := userCtx(uuid.New())
	res, err := f.svc.Upload(ctx, "ventas.csv", []byte(ventasCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := f.svc.Rename(ctx, res.Source.ID, "  "); !errors.Is(err, apierr.ErrInvalidArgument) {
		t.Fatalf("expected invalid name error, got %v", err)
	}
	renamed, err := f.svc.Rename(ctx, res.Source.ID, "Ventas anuales")
	if err != nil || renamed.DisplayName != "Ventas anuales" {
		t.Fatalf("Rename = %+v, %v", renamed, err)
	}
	list, err := f.svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Ventas anuales" || list[0].Host != "file" || list[0].Units != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCatalogLocalCandidateComesFirstAndSkipsDocuments(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	if _, err := f.svc.Upload(ctx, "ventas.csv", []byte(ventasCSV)); err != nil {
		t.Fatalf("Upload csv: %v", err)
	}
	if _, err := f.svc.Upload(ctx, "manual.md", []byte("# Manual\nTexto del manual.")); err != nil {
		t.Fatalf("Upload md: %v", err)
	}

	cands, err := f.catalog.Candidates(ctx, owner)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	items := cands.Items()
	if len(items) != 2 {
		t.Fatalf("expected local + csv, got %+v", items)
	}
	if def, ok := cands.Default(); !ok || def.ID != query.LocalCandidateID || items[0].ID != query.LocalCandidateID {
		t.Fatalf("local candidate must be the default and first: %+v", items)
	}
	if !strings.Contains(items[0].Description, ingest.TableName(owner, "ventas.csv")) {
		t.Fatalf("local description should list uploaded tables: %q", items[0].Description)
	}
}

func TestCatalogLocalSessionIsOwnerScoped(t *testing.T) {
	f := newSourceFixture(t)
	alice, bob := uuid.New(), uuid.New()
	if _, err := f.svc.Upload(userCtx(alice), "ventas.csv", []byte(ventasCSV)); err != nil {
		t.Fatalf("Upload alice: %v", err)
	}
	if _, err := f.svc.Upload(userCtx(bob), "costos.csv", []byte("producto,costo\nsilla,10\n")); err != nil {
		t.Fatalf("Upload bob: %v", err)
	}

	session, err := f.catalog.Open(context.Background(), alice, query.LocalCandidate(""))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()
	tables, err := session.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != ingest.TableName(alice, "ventas.csv") {
		t.Fatalf("alice sees %+v", tables)
	}
}
