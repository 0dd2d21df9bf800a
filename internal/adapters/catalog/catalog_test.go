package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/surgilog/internal/adapters/catalog"
	"github.com/okian/surgilog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleDoc = `
surgeries:
  - id: srg-1
    name: Phaco
    area_id: area-1
    steps: [a, b]
    osats:
      - item: tissue
        scale:
          - punctuation: 1
          - punctuation: 5
`

func TestCatalogLoad(t *testing.T) {
	Convey("Given the built-in catalog", t, func() {
		c, err := catalog.Load(context.Background(), "")

		Convey("Then it loads with templates for every surgery", func() {
			So(err, ShouldBeNil)
			So(c.Len(), ShouldBeGreaterThan, 0)
			for _, id := range c.IDs() {
				tpl, err := c.Template(context.Background(), id)
				So(err, ShouldBeNil)
				So(tpl.Name, ShouldNotBeEmpty)
				So(tpl.Steps, ShouldNotBeEmpty)
				So(tpl.Osats, ShouldNotBeEmpty)
			}
		})
	})

	Convey("Given a catalog file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		So(os.WriteFile(path, []byte(sampleDoc), 0o600), ShouldBeNil)

		Convey("When it is loaded", func() {
			c, err := catalog.Load(context.Background(), path)
			So(err, ShouldBeNil)
			tpl, err := c.Template(context.Background(), "srg-1")

			Convey("Then its template is available", func() {
				So(err, ShouldBeNil)
				So(tpl.Name, ShouldEqual, "Phaco")
				So(tpl.AreaID, ShouldEqual, "area-1")
				So(tpl.Steps, ShouldResemble, []string{"a", "b"})
				So(tpl.Osats[0].Scale[1].Punctuation, ShouldEqual, 5)
			})
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := catalog.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))

		Convey("Then loading fails", func() {
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})
	})
}

func TestCatalogTemplate(t *testing.T) {
	Convey("Given a parsed catalog", t, func() {
		ctx := context.Background()
		c, err := catalog.Parse(ctx, []byte(sampleDoc))
		So(err, ShouldBeNil)

		Convey("When an unknown surgery is requested", func() {
			_, err := c.Template(ctx, "srg-9")

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a returned template is modified", func() {
			tpl, _ := c.Template(ctx, "srg-1")
			tpl.Steps[0] = "changed"
			tpl.Osats[0].Scale[0].Punctuation = 9

			Convey("Then the catalog is unaffected", func() {
				again, _ := c.Template(ctx, "srg-1")
				So(again.Steps[0], ShouldEqual, "a")
				So(again.Osats[0].Scale[0].Punctuation, ShouldEqual, 1)
			})
		})
	})

	Convey("Given templates with a duplicate id", t, func() {
		_, err := catalog.New(model.SurgeryTemplate{ID: "x"}, model.SurgeryTemplate{ID: "x"})

		Convey("Then construction fails", func() {
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})
	})
}

func TestCatalogParse(t *testing.T) {
	Convey("Given an in-memory catalog document", t, func() {
		ctx := context.Background()
		doc := []byte(`
surgeries:
  - id: cataract-ecce
    name: ECCE
    area_id: anterior
    steps: [incision, nucleus expression]
`)

		Convey("When it is parsed", func() {
			cat, err := catalog.Parse(ctx, doc)

			Convey("Then its template is available", func() {
				So(err, ShouldBeNil)
				So(cat.Len(), ShouldEqual, 1)
				tpl, err := cat.Template(ctx, "cataract-ecce")
				So(err, ShouldBeNil)
				So(tpl.Name, ShouldEqual, "ECCE")
				So(tpl.Steps, ShouldResemble, []string{"incision", "nucleus expression"})
			})
		})

		Convey("When the document is malformed", func() {
			_, err := catalog.Parse(ctx, []byte("surgeries: [unterminated\n"))

			Convey("Then it is rejected as an invalid catalog", func() {
				So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
			})
		})
	})
}
