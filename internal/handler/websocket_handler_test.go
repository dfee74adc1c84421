package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/superhero-manager/backend/internal/broker"
)

func (s *APITestSuite) TestLiveStreamsHeroEvents() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/heroes/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Equal(http.StatusSwitchingProtocols, resp.StatusCode)

	// The subscription is registered before the upgrade completes
	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Barry Allen", "Flash", "DC"), nil, s.token(s.editor))
	s.Require().Equal(http.StatusCreated, w.Code)
	created := s.decodeHero(w)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)

	var event broker.HeroEvent
	s.Require().NoError(json.Unmarshal(data, &event))
	s.Equal(broker.HeroCreated, event.Type)
	s.Equal(created.ID.String(), event.HeroID)
	s.Require().NotNil(event.Hero)
	s.Equal("Flash", event.Hero.Alias)
}

func (s *APITestSuite) TestLiveRejectsForeignOrigin() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/heroes/live"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	s.Error(err)
	if resp != nil {
		s.NotEqual(http.StatusSwitchingProtocols, resp.StatusCode)
	}
}
