package api_test

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/versus/internal/adapters/http/api"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/catalog"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/engine/session"
	"github.com/okian/versus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func newTestServer(n int) *httptest.Server {
	entities := make([]model.EntityAttributes, 0, n)
	for i := 0; i < n; i++ {
		id := model.EntityID(fmt.Sprintf("e%02d", i))
		entities = append(entities, model.EntityAttributes{ID: id, Name: string(id)})
	}
	s, err := session.New(config.New(), catalog.NewInMemoryProvider(entities),
		session.WithRNG(rand.New(rand.NewSource(11))))
	So(err, ShouldBeNil)

	return httptest.NewServer(api.NewServer(s).Router())
}

func getJSON(ts *httptest.Server, path string, v any) int {
	resp, err := http.Get(ts.URL + path)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	if v != nil {
		So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
	}
	return resp.StatusCode
}

func postJSON(ts *httptest.Server, path, body string, v any) int {
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	if v != nil {
		So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
	}
	return resp.StatusCode
}

type groupBody struct {
	Members  []model.EntityID `json:"members"`
	Strategy string           `json:"strategy"`
}

func TestComparisonEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(10)
		defer ts.Close()

		Convey("Then health answers ok", func() {
			So(getJSON(ts, "/healthz", nil), ShouldEqual, http.StatusOK)
		})

		Convey("When requesting the next group", func() {
			var group groupBody
			status := getJSON(ts, "/next", &group)

			Convey("Then a two-member group is returned", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(group.Members, ShouldHaveLength, 2)
				So(group.Strategy, ShouldNotBeEmpty)
			})

			Convey("Then a valid outcome resolves it", func() {
				body := fmt.Sprintf(`{"winners":[%q]}`, group.Members[0])
				So(postJSON(ts, "/outcome", body, nil), ShouldEqual, http.StatusOK)

				var stats struct {
					TotalComparisons int `json:"total_comparisons"`
				}
				So(getJSON(ts, "/stats", &stats), ShouldEqual, http.StatusOK)
				So(stats.TotalComparisons, ShouldEqual, 1)
			})

			Convey("Then an outcome for a non-member is rejected", func() {
				So(postJSON(ts, "/outcome", `{"winners":["ghost"]}`, nil),
					ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When posting an outcome with no outstanding group", func() {
			So(postJSON(ts, "/outcome", `{"winners":["e01"]}`, nil),
				ShouldEqual, http.StatusConflict)
		})

		Convey("When undoing with no history", func() {
			So(postJSON(ts, "/undo", ``, nil), ShouldEqual, http.StatusConflict)
		})
	})
}

func TestRankingEndpoints(t *testing.T) {
	Convey("Given a server with a few resolved comparisons", t, func() {
		ts := newTestServer(10)
		defer ts.Close()

		for i := 0; i < 3; i++ {
			var group groupBody
			So(getJSON(ts, "/next", &group), ShouldEqual, http.StatusOK)
			body := fmt.Sprintf(`{"winners":[%q]}`, group.Members[0])
			So(postJSON(ts, "/outcome", body, nil), ShouldEqual, http.StatusOK)
		}

		Convey("Then the snapshot lists rated entities in order", func() {
			var entries []struct {
				Rank              int     `json:"rank"`
				ConservativeScore float64 `json:"conservative_score"`
			}
			So(getJSON(ts, "/snapshot", &entries), ShouldEqual, http.StatusOK)
			So(entries, ShouldNotBeEmpty)
			for i := 1; i < len(entries); i++ {
				So(entries[i].ConservativeScore,
					ShouldBeLessThanOrEqualTo, entries[i-1].ConservativeScore)
			}
		})

		Convey("Then a negative limit is rejected", func() {
			So(getJSON(ts, "/snapshot?limit=-1", nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then per-entity stats are reported", func() {
			var entries []struct {
				ID model.EntityID `json:"id"`
			}
			So(getJSON(ts, "/snapshot", &entries), ShouldEqual, http.StatusOK)

			var stats struct {
				Wins   *int `json:"wins"`
				Losses *int `json:"losses"`
			}
			So(getJSON(ts, "/stats?id="+string(entries[0].ID), &stats), ShouldEqual, http.StatusOK)
			So(stats.Wins, ShouldNotBeNil)
			So(stats.Losses, ShouldNotBeNil)
		})

		Convey("Then reset wipes the ranking", func() {
			So(postJSON(ts, "/reset", ``, nil), ShouldEqual, http.StatusOK)

			var entries []any
			So(getJSON(ts, "/snapshot", &entries), ShouldEqual, http.StatusOK)
			So(entries, ShouldBeEmpty)
		})
	})
}

func TestRefinementEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(8)
		defer ts.Close()

		Convey("When queuing a refinement", func() {
			var ack struct {
				Queued bool `json:"queued"`
			}
			status := postJSON(ts, "/refine", `{"primary":"e01","opponent":"e04","reason":"manual"}`, &ack)

			Convey("Then it is accepted once and deduplicated after", func() {
				So(status, ShouldEqual, http.StatusAccepted)
				So(ack.Queued, ShouldBeTrue)

				var dup struct {
					Queued bool `json:"queued"`
				}
				So(postJSON(ts, "/refine", `{"primary":"e04","opponent":"e01","reason":"manual"}`, &dup),
					ShouldEqual, http.StatusAccepted)
				So(dup.Queued, ShouldBeFalse)
			})

			Convey("Then the queued pair is served next", func() {
				var group groupBody
				So(getJSON(ts, "/next", &group), ShouldEqual, http.StatusOK)
				So(group.Members, ShouldContain, model.EntityID("e01"))
				So(group.Members, ShouldContain, model.EntityID("e04"))
			})
		})

		Convey("When flagging an entity for immediate comparison", func() {
			So(postJSON(ts, "/request", `{"id":"e05"}`, nil), ShouldEqual, http.StatusAccepted)

			var group groupBody
			So(getJSON(ts, "/next", &group), ShouldEqual, http.StatusOK)
			So(group.Members, ShouldContain, model.EntityID("e05"))
		})

		Convey("When posting malformed bodies", func() {
			So(postJSON(ts, "/refine", `{"primary":""}`, nil), ShouldEqual, http.StatusBadRequest)
			So(postJSON(ts, "/reorder", `{"id":"e01","rank":0}`, nil), ShouldEqual, http.StatusBadRequest)
			So(postJSON(ts, "/request", `{`, nil), ShouldEqual, http.StatusBadRequest)
		})
	})
}
