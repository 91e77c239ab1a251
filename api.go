package main

import (
	"context"
	"net/http"
	"sort"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const effectorKey contextKey = "effector"

//---
// Payloads
//---

type EffectorSummary struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Preempt string `json:"preempt"`
	Running bool   `json:"running"`
	Busy    bool   `json:"busy"`
}

type EffectorState struct {
	Name       string                    `json:"name"`
	Position   float64                   `json:"position"`
	Force      float64                   `json:"force"`
	Error      bool                      `json:"error"`
	Calibrated bool                      `json:"calibrated"`
	Gripping   bool                      `json:"gripping"`
	Actuator   gripper.Parameters        `json:"actuator"`
	Control    gripper.ControlParameters `json:"control"`
}

type ParamsPayload struct {
	Values  map[string]float64 `json:"values"`
	Missing []string           `json:"missing,omitempty"`
}

func (p *ParamsPayload) Bind(r *http.Request) error {
	if len(p.Values) == 0 {
		return errors.New("no values provided")
	}
	return nil
}

//---
// Middleware
//---

// EffectorCtx loads the action server named in the URL.
func EffectorCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server, ok := ENV.Servers[chi.URLParam(r, "name")]
		if !ok {
			render.Render(w, r, ErrNotFound)
			return
		}

		ctx := context.WithValue(r.Context(), effectorKey, server)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func effectorFromContext(r *http.Request) *gripper.Server {
	return r.Context().Value(effectorKey).(*gripper.Server)
}

//---
// Views
//---

func ListEffectors(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(ENV.Servers))
	for name := range ENV.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]EffectorSummary, 0, len(names))
	for _, name := range names {
		server := ENV.Servers[name]
		_, busy := server.Active()
		list = append(list, EffectorSummary{
			Name:    name,
			Type:    server.Executor().Type().String(),
			Preempt: server.Executor().Policy().String(),
			Running: server.Running(),
			Busy:    busy,
		})
	}

	render.JSON(w, r, list)
}

func GetEffectorState(w http.ResponseWriter, r *http.Request) {
	exec := effectorFromContext(r).Executor()
	act := exec.Actuator()

	render.JSON(w, r, EffectorState{
		Name:       exec.Name(),
		Position:   act.Position(),
		Force:      act.Force(),
		Error:      act.Error(),
		Calibrated: act.Calibrated(),
		Gripping:   act.Gripping(),
		Actuator:   act.Parameters(),
		Control:    exec.Parameters(),
	})
}

func paramsFor(exec *gripper.Executor) (ParamsPayload, error) {
	keys := gripper.ParamKeys(exec.Name(), exec.Type())
	values, err := ENV.Params.Subset(keys)
	if err != nil {
		return ParamsPayload{}, err
	}

	payload := ParamsPayload{Values: values}
	for _, key := range keys {
		if _, ok := values[key]; !ok {
			payload.Missing = append(payload.Missing, key)
		}
	}
	return payload, nil
}

func GetEffectorParams(w http.ResponseWriter, r *http.Request) {
	payload, err := paramsFor(effectorFromContext(r).Executor())
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	render.JSON(w, r, payload)
}

// PutEffectorParams stores new values. They take effect with the next goal.
func PutEffectorParams(w http.ResponseWriter, r *http.Request) {
	exec := effectorFromContext(r).Executor()

	data := &ParamsPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	allowed := make(map[string]bool)
	for _, key := range gripper.ParamKeys(exec.Name(), exec.Type()) {
		allowed[key] = true
	}
	for key := range data.Values {
		if !allowed[key] {
			render.Render(w, r, ErrInvalidRequest(errors.Errorf("%s is not a parameter of %s", key, exec.Name())))
			return
		}
	}

	if err := ENV.Params.SetMany(data.Values); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	log.WithFields(log.Fields{"effector": exec.Name(), "values": data.Values}).Info("parameters updated")

	payload, err := paramsFor(exec)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	render.JSON(w, r, payload)
}

// StopEffector cancels the active goal and halts the actuator.
func StopEffector(w http.ResponseWriter, r *http.Request) {
	server := effectorFromContext(r)
	if g, ok := server.Active(); ok {
		g.Cancel()
	}

	if err := server.Executor().Actuator().Stop(); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "stopping"})
}
