package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/simforge/simforge/internal/graphstore"
	"github.com/simforge/simforge/internal/simmodel"
)

// Neo4jRepository implements graphstore.Repository using Neo4j.
//
// Each model's nodes carry a model_id property so several compiled models
// can live in one database without name collisions. Nested activity fields
// (conditions, requirements) are stored as JSON string properties and
// decoded on load.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed repository and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) StoreModel(ctx context.Context, ref graphstore.ModelRef, doc *simmodel.Document) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Replace any previous contents for this model ID
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (n {model_id: $mid}) DETACH DELETE n",
			map[string]any{"mid": ref.ID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			"MERGE (m:Model {id: $mid}) "+
				"SET m.source = $source, m.format = $format, m.fingerprint = $fp, "+
				"m.compiled_at = $at, m.scenario = $scenario, m.description = $desc",
			map[string]any{
				"mid":      ref.ID,
				"source":   ref.Source,
				"format":   ref.Format,
				"fp":       ref.Fingerprint,
				"at":       ref.CompiledAt.Format(time.RFC3339Nano),
				"scenario": doc.Scenario,
				"desc":     doc.Description,
			})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("store model %s: %w", ref.ID, err)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, act := range doc.Model.Activities {
			conditions, err := json.Marshal(act.Conditions)
			if err != nil {
				return nil, err
			}
			requirements, err := json.Marshal(act.Requirements)
			if err != nil {
				return nil, err
			}
			_, err = tx.Run(ctx,
				"MERGE (a:Activity {model_id: $mid, name: $name}) "+
					"SET a.handler = $handler, a.initial = $initial, "+
					"a.conditions = $conditions, a.requirements = $requirements "+
					"MERGE (m:Model {id: $mid}) "+
					"MERGE (m)-[:CONTAINS]->(a) "+
					"MERGE (e:Entity {model_id: $mid, name: $handler}) "+
					"MERGE (e)-[:HANDLES]->(a)",
				map[string]any{
					"mid":          ref.ID,
					"name":         act.ID,
					"handler":      act.HandlerType,
					"initial":      act.Attributes.Initial,
					"conditions":   string(conditions),
					"requirements": string(requirements),
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store activities: %w", err)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, res := range doc.Model.Resources {
			_, err := tx.Run(ctx,
				"MERGE (r:Resource {model_id: $mid, name: $name}) "+
					"SET r.group = $group, r.quantity = $quantity",
				map[string]any{
					"mid":      ref.ID,
					"name":     res.Type,
					"group":    res.Group,
					"quantity": res.Quantity,
				})
			if err != nil {
				return nil, err
			}
		}
		for _, act := range doc.Model.Activities {
			for _, req := range act.Requirements {
				for _, group := range req.ResourceGroups {
					_, err := tx.Run(ctx,
						"MATCH (a:Activity {model_id: $mid, name: $act}) "+
							"MERGE (r:Resource {model_id: $mid, name: $res}) "+
							"MERGE (a)-[q:REQUIRES]->(r) SET q.quantity = $quantity",
						map[string]any{
							"mid":      ref.ID,
							"act":      act.ID,
							"res":      group,
							"quantity": req.Quantity,
						})
					if err != nil {
						return nil, err
					}
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store resources: %w", err)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rel := range doc.Model.EntityRelationships {
			_, err := tx.Run(ctx,
				"MERGE (o:Entity {model_id: $mid, name: $owner}) "+
					"MERGE (c:Entity {model_id: $mid, name: $component}) "+
					"MERGE (o)-[:OWNS]->(c)",
				map[string]any{"mid": ref.ID, "owner": rel.Owner, "component": rel.Component})
			if err != nil {
				return nil, err
			}
		}
		for _, conn := range doc.Model.Connections {
			_, err := tx.Run(ctx,
				"MERGE (a:Activity {model_id: $mid, name: $from}) "+
					"MERGE (b:Activity {model_id: $mid, name: $to}) "+
					"MERGE (a)-[:FLOWS_TO {type: $type}]->(b)",
				map[string]any{"mid": ref.ID, "from": conn.From, "to": conn.To, "type": string(conn.Type)})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store connections: %w", err)
	}

	return nil
}

func (r *Neo4jRepository) LoadModel(ctx context.Context, modelID string) (*simmodel.Document, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		doc := simmodel.NewDocument()

		records, err := tx.Run(ctx,
			"MATCH (m:Model {id: $mid}) RETURN m.scenario, m.description",
			map[string]any{"mid": modelID})
		if err != nil {
			return nil, err
		}
		if !records.Next(ctx) {
			return nil, fmt.Errorf("model %s not found", modelID)
		}
		rec := records.Record()
		if scenario, _ := rec.Get("m.scenario"); scenario != nil {
			doc.Scenario = scenario.(string)
		}
		if desc, _ := rec.Get("m.description"); desc != nil {
			doc.Description = desc.(string)
		}

		records, err = tx.Run(ctx,
			"MATCH (m:Model {id: $mid})-[:CONTAINS]->(a:Activity) "+
				"RETURN a.name, a.handler, a.initial, a.conditions, a.requirements "+
				"ORDER BY a.name",
			map[string]any{"mid": modelID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			name, _ := rec.Get("a.name")
			handler, _ := rec.Get("a.handler")
			initial, _ := rec.Get("a.initial")
			conditions, _ := rec.Get("a.conditions")
			requirements, _ := rec.Get("a.requirements")

			act := simmodel.Activity{
				ID:           name.(string),
				HandlerType:  handler.(string),
				Attributes:   simmodel.Attributes{Initial: initial.(bool)},
				Conditions:   []simmodel.Condition{},
				Requirements: []simmodel.Requirement{},
			}
			if s, ok := conditions.(string); ok && s != "" {
				if err := json.Unmarshal([]byte(s), &act.Conditions); err != nil {
					return nil, fmt.Errorf("decode conditions of %s: %w", act.ID, err)
				}
			}
			if s, ok := requirements.(string); ok && s != "" {
				if err := json.Unmarshal([]byte(s), &act.Requirements); err != nil {
					return nil, fmt.Errorf("decode requirements of %s: %w", act.ID, err)
				}
			}
			doc.Model.Activities = append(doc.Model.Activities, act)
		}

		records, err = tx.Run(ctx,
			"MATCH (r:Resource {model_id: $mid}) "+
				"RETURN r.name, r.group, r.quantity ORDER BY r.name",
			map[string]any{"mid": modelID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			name, _ := rec.Get("r.name")
			group, _ := rec.Get("r.group")
			quantity, _ := rec.Get("r.quantity")
			res := simmodel.Resource{Type: name.(string)}
			if s, ok := group.(string); ok {
				res.Group = s
			}
			if n, ok := quantity.(int64); ok {
				res.Quantity = int(n)
			}
			doc.Model.Resources = append(doc.Model.Resources, res)
		}

		records, err = tx.Run(ctx,
			"MATCH (o:Entity {model_id: $mid})-[:OWNS]->(c:Entity) "+
				"RETURN o.name, c.name ORDER BY o.name, c.name",
			map[string]any{"mid": modelID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			owner, _ := rec.Get("o.name")
			component, _ := rec.Get("c.name")
			doc.Model.EntityRelationships = append(doc.Model.EntityRelationships,
				simmodel.EntityRelationship{Owner: owner.(string), Component: component.(string)})
		}

		records, err = tx.Run(ctx,
			"MATCH (a:Activity {model_id: $mid})-[f:FLOWS_TO]->(b:Activity) "+
				"RETURN a.name, f.type, b.name ORDER BY a.name, b.name, f.type",
			map[string]any{"mid": modelID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			from, _ := rec.Get("a.name")
			typ, _ := rec.Get("f.type")
			to, _ := rec.Get("b.name")
			doc.Model.Connections = append(doc.Model.Connections, simmodel.Connection{
				Type: simmodel.ConnectionType(typ.(string)),
				From: from.(string),
				To:   to.(string),
			})
		}

		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*simmodel.Document), nil
}

func (r *Neo4jRepository) ListModels(ctx context.Context) ([]graphstore.ModelSummary, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (m:Model) "+
				"OPTIONAL MATCH (m)-[:CONTAINS]->(a:Activity) "+
				"OPTIONAL MATCH (e:Entity {model_id: m.id}) "+
				"RETURN m.id AS id, m.source AS source, m.compiled_at AS at, "+
				"count(DISTINCT a) AS activities, count(DISTINCT e) AS entities "+
				"ORDER BY at DESC",
			nil)
		if err != nil {
			return nil, err
		}

		var summaries []graphstore.ModelSummary
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("id")
			source, _ := rec.Get("source")
			at, _ := rec.Get("at")
			activities, _ := rec.Get("activities")
			entities, _ := rec.Get("entities")

			s := graphstore.ModelSummary{ID: id.(string)}
			if v, ok := source.(string); ok {
				s.Source = v
			}
			if v, ok := at.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
					s.CompiledAt = t
				}
			}
			if v, ok := activities.(int64); ok {
				s.Activities = int(v)
			}
			if v, ok := entities.(int64); ok {
				s.Entities = int(v)
			}
			summaries = append(summaries, s)
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]graphstore.ModelSummary), nil
}

func (r *Neo4jRepository) QueryDownstream(ctx context.Context, modelID, activity string) ([]string, error) {
	return r.queryNames(ctx,
		"MATCH (:Activity {model_id: $mid, name: $name})-[:FLOWS_TO]->(next:Activity) "+
			"RETURN DISTINCT next.name AS name ORDER BY name",
		map[string]any{"mid": modelID, "name": activity})
}

func (r *Neo4jRepository) QueryHandledBy(ctx context.Context, modelID, entity string) ([]string, error) {
	return r.queryNames(ctx,
		"MATCH (:Entity {model_id: $mid, name: $name})-[:HANDLES]->(a:Activity) "+
			"RETURN a.name AS name ORDER BY name",
		map[string]any{"mid": modelID, "name": entity})
}

func (r *Neo4jRepository) queryNames(ctx context.Context, query string, params map[string]any) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var names []string
		for records.Next(ctx) {
			n, _ := records.Record().Get("name")
			names = append(names, n.(string))
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Neo4jRepository) DeleteModel(ctx context.Context, modelID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (n {model_id: $mid}) DETACH DELETE n",
			map[string]any{"mid": modelID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			"MATCH (m:Model {id: $mid}) DETACH DELETE m",
			map[string]any{"mid": modelID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete model %s: %w", modelID, err)
	}
	return nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graphstore.Repository = (*Neo4jRepository)(nil)
