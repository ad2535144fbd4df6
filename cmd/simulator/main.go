package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// apiError mirrors the ledger's JSON error body.
type apiError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Field     string `json:"field"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

// do sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses come back as *apiError.
func (c *apiClient) do(method, path string, body, out interface{}) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		buf = bytes.NewBuffer(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var wrapped struct {
			Error *apiError `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error != nil {
			wrapped.Error.Status = resp.StatusCode
			return wrapped.Error
		}
		apiErr.Code = "http_error"
		apiErr.Message = string(bytes.TrimSpace(raw))
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// withRetry retries calls the ledger marks retryable.
func withRetry(attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		var apiErr *apiError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.Retryable {
			return err
		}
		time.Sleep(backoff * time.Duration(i+1))
	}
	return err
}

var (
	firstNames = []string{"Ahmed", "Bilal", "Carlos", "Deepak", "Farid", "Hassan", "Imran", "Jose", "Karim", "Omar"}
	carriers   = []string{"du", "Etisalat", "Virgin Mobile"}
	bikes      = [][2]string{{"Honda", "Unicorn"}, {"Bajaj", "Pulsar"}, {"Yamaha", "FZ"}, {"TVS", "Apache"}}
	clientList = []string{"Talabat", "Noon", "Careem", "Deliveroo"}
	assetKinds = [][2]string{{"Helmet", "safety"}, {"Delivery box", "equipment"}, {"Jacket", "uniform"}}
)

type fleet struct {
	ClientIDs []string
	DriverIDs []string
	AssetIDs  []string
}

// seedFleet creates clients, drivers, vehicles, SIMs and asset stock sized to
// the requested fleet.
func seedFleet(c *apiClient, size int, rng *rand.Rand) (*fleet, error) {
	f := &fleet{}
	for _, name := range clientList {
		var out models.Client
		err := c.do(http.MethodPost, "/clients", models.Client{
			ID:            "CL-" + uuid.NewString()[:8],
			Name:          name,
			ContractStart: time.Now().UTC().AddDate(0, -6, 0),
			ContractEnd:   time.Now().UTC().AddDate(1, 0, 0),
			Rate:          10 + float64(rng.Intn(10)),
			SLA:           "30 minute delivery",
		}, &out)
		if err != nil {
			return nil, fmt.Errorf("create client %s: %w", name, err)
		}
		f.ClientIDs = append(f.ClientIDs, out.ID)
	}

	for i := 0; i < size; i++ {
		var d models.Driver
		err := c.do(http.MethodPost, "/drivers", models.Driver{
			ID:            fmt.Sprintf("DRV-%04d", i+1),
			Name:          fmt.Sprintf("%s %d", firstNames[rng.Intn(len(firstNames))], i+1),
			Phone:         fmt.Sprintf("+9715%08d", rng.Intn(100000000)),
			LicenseExpiry: time.Now().UTC().AddDate(2, 0, 0),
			BaseSalary:    2500 + float64(rng.Intn(1000)),
		}, &d)
		if err != nil {
			return nil, fmt.Errorf("create driver: %w", err)
		}
		f.DriverIDs = append(f.DriverIDs, d.ID)

		bike := bikes[rng.Intn(len(bikes))]
		if err := c.do(http.MethodPost, "/vehicles", models.Vehicle{
			ID:    "VIN-" + uuid.NewString()[:12],
			Plate: fmt.Sprintf("DXB-%05d", rng.Intn(100000)),
			Make:  bike[0],
			Model: bike[1],
		}, nil); err != nil {
			return nil, fmt.Errorf("create vehicle: %w", err)
		}
		if err := c.do(http.MethodPost, "/sims", models.Sim{
			ID:      "SIM-" + uuid.NewString()[:8],
			Number:  fmt.Sprintf("+97150%07d", rng.Intn(10000000)),
			Carrier: carriers[rng.Intn(len(carriers))],
		}, nil); err != nil {
			return nil, fmt.Errorf("create sim: %w", err)
		}
	}

	for _, kind := range assetKinds {
		var a models.Asset
		if err := c.do(http.MethodPost, "/assets", models.Asset{
			ID:            "AST-" + uuid.NewString()[:8],
			Name:          kind[0],
			Category:      kind[1],
			TotalQuantity: size,
		}, &a); err != nil {
			return nil, fmt.Errorf("create asset %s: %w", kind[0], err)
		}
		f.AssetIDs = append(f.AssetIDs, a.ID)
	}

	log.WithFields(log.Fields{
		"clients": len(f.ClientIDs),
		"drivers": len(f.DriverIDs),
		"assets":  len(f.AssetIDs),
	}).Info("Seeded fleet")
	return f, nil
}

// dispositions settles every item bound to the driver, marking each one
// missing with the given probability.
func dispositions(d models.Driver, missingRate float64, rng *rand.Rand) []models.ItemDisposition {
	settle := func(kind models.ItemKind, id string, qty int) models.ItemDisposition {
		it := models.ItemDisposition{Kind: kind, ResourceID: id, State: models.DispositionReturned, Quantity: qty}
		if rng.Float64() < missingRate {
			it.State = models.DispositionMissing
			it.Note = fmt.Sprintf("%s not handed back by %s", kind, d.Name)
		}
		return it
	}
	var items []models.ItemDisposition
	if d.AssignedVehicleID != "" {
		items = append(items, settle(models.ItemVehicle, d.AssignedVehicleID, 0))
	}
	if d.AssignedSimID != "" {
		items = append(items, settle(models.ItemSim, d.AssignedSimID, 0))
	}
	for _, line := range d.AssignedAssets {
		items = append(items, settle(models.ItemAsset, line.AssetID, line.Quantity))
	}
	return items
}

type stats struct {
	mu          sync.Mutex
	assigned    int
	released    int
	missing     int
	rejected    map[string]int
	transportKO int
}

func (s *stats) reject(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		s.rejected[apiErr.Code]++
		return
	}
	s.transportKO++
}

func (s *stats) fields() log.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := log.Fields{
		"assigned":  s.assigned,
		"released":  s.released,
		"missing":   s.missing,
		"transport": s.transportKO,
	}
	for code, n := range s.rejected {
		f["rejected_"+code] = n
	}
	return f
}

type dispatcher struct {
	api         *apiClient
	fleet       *fleet
	rng         *rand.Rand
	missingRate float64
	stats       *stats
}

// step picks a driver and moves it one workflow step: Idle drivers are
// assigned, Active drivers are released.
func (d *dispatcher) step() {
	driverID := d.fleet.DriverIDs[d.rng.Intn(len(d.fleet.DriverIDs))]
	var drv models.Driver
	if err := d.api.do(http.MethodGet, "/drivers/"+driverID, nil, &drv); err != nil {
		d.stats.reject(err)
		return
	}

	switch drv.Status {
	case models.DriverIdle, models.DriverInactive:
		d.assign(drv)
	case models.DriverActive:
		d.release(drv)
	}
}

func (d *dispatcher) assign(drv models.Driver) {
	err := withRetry(3, 50*time.Millisecond, func() error {
		var vehicles []models.Vehicle
		if err := d.api.do(http.MethodGet, "/vehicles?status=Available", nil, &vehicles); err != nil {
			return err
		}
		var sims []models.Sim
		if err := d.api.do(http.MethodGet, "/sims?status=Available", nil, &sims); err != nil {
			return err
		}
		version := drv.Version
		req := map[string]interface{}{
			"driver_id":               drv.ID,
			"client_id":               d.fleet.ClientIDs[d.rng.Intn(len(d.fleet.ClientIDs))],
			"date_of_joining":         time.Now().UTC(),
			"pay_model":               []models.PayModel{models.PayMonthly, models.PayPerDelivery, models.PayCommission}[d.rng.Intn(3)],
			"expected_driver_version": version,
		}
		if len(vehicles) > 0 {
			req["vehicle_id"] = vehicles[d.rng.Intn(len(vehicles))].ID
		}
		if len(sims) > 0 {
			req["sim_id"] = sims[d.rng.Intn(len(sims))].ID
		}
		if len(d.fleet.AssetIDs) > 0 {
			req["assets"] = []models.AssetLine{{
				AssetID:   d.fleet.AssetIDs[d.rng.Intn(len(d.fleet.AssetIDs))],
				Quantity:  1,
				Condition: "good",
			}}
		}
		err := d.api.do(http.MethodPost, "/assignments", req, nil)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "stale_driver" {
			// re-read before the next attempt
			_ = d.api.do(http.MethodGet, "/drivers/"+drv.ID, nil, &drv)
		}
		return err
	})
	if err != nil {
		d.stats.reject(err)
		log.WithFields(log.Fields{"driver_id": drv.ID, "error": err}).Debug("Assignment rejected")
		return
	}
	d.stats.mu.Lock()
	d.stats.assigned++
	d.stats.mu.Unlock()
	log.WithField("driver_id", drv.ID).Info("Assigned driver")
}

func (d *dispatcher) release(drv models.Driver) {
	items := dispositions(drv, d.missingRate, d.rng)
	missing := 0
	for _, it := range items {
		if it.State == models.DispositionMissing {
			missing++
		}
	}
	err := d.api.do(http.MethodPost, "/reassignments", map[string]interface{}{
		"driver_id":               drv.ID,
		"reason":                  "shift rotation",
		"new_status":              models.DriverIdle,
		"items":                   items,
		"expected_driver_version": drv.Version,
	}, nil)
	if err != nil {
		d.stats.reject(err)
		log.WithFields(log.Fields{"driver_id": drv.ID, "error": err}).Debug("Reassignment rejected")
		return
	}
	d.stats.mu.Lock()
	d.stats.released++
	d.stats.missing += missing
	d.stats.mu.Unlock()
	log.WithFields(log.Fields{"driver_id": drv.ID, "missing": missing}).Info("Released driver")
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return def
}

func main() {
	authToken := os.Getenv("SIM_AUTH_TOKEN")
	fleetSize := envInt("FLEET_SIZE", 10)
	dispatchers := envInt("SIM_DISPATCHERS", 3)
	missingRate := envFloat("SIM_MISSING_RATE", 0.05)

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second

	log.WithFields(log.Fields{
		"fleet_size":   fleetSize,
		"dispatchers":  dispatchers,
		"missing_rate": missingRate,
		"api_url":      apiURL,
		"interval":     interval,
	}).Info("Starting dispatch simulation")

	api := newAPIClient(apiURL, authToken)
	f, err := seedFleet(api, fleetSize, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.WithError(err).Error("Seeding failed. Ensure SIM_AUTH_TOKEN belongs to a manager and the API is reachable. Exiting.")
		os.Exit(1)
	}

	st := &stats{rejected: map[string]int{}}
	for i := 0; i < dispatchers; i++ {
		d := &dispatcher{
			api:         api,
			fleet:       f,
			rng:         rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			missingRate: missingRate,
			stats:       st,
		}
		go func() {
			tick := time.NewTicker(interval)
			defer tick.Stop()
			for range tick.C {
				d.step()
			}
		}()
	}

	log.Info("Dispatch simulation started")
	for range time.Tick(30 * time.Second) {
		log.WithFields(st.fields()).Info("Simulation progress")
	}
}
