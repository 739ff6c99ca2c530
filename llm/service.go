package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"

	"tripplanner/itinerary"
	"tripplanner/resilient"
)

const (
	overviewMaxTokens    = 1500
	planMaxTokens        = 400
	replacementMaxTokens = 60
	narrativeMaxTokens   = 1800
	assistantMaxTokens   = 900
)

// Service implements the generative side of planning on top of a Completer.
type Service struct {
	completer Completer
	caller    *resilient.Caller
	logger    *slog.Logger
}

var _ itinerary.Generator = (*Service)(nil)

func NewService(completer Completer, caller *resilient.Caller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{completer: completer, caller: caller, logger: logger}
}

func (s *Service) complete(ctx context.Context, op string, req Request) (string, error) {
	return resilient.Do(ctx, s.caller, resilient.Call{Op: op, Target: "llm"}, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, req)
	})
}

func formatDay(t time.Time) string {
	return t.Format("January 2, 2006")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func tripFacts(trip *itinerary.Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Destination: %s\n", trip.Destination)
	fmt.Fprintf(&b, "Dates: %s to %s\n", formatDay(trip.StartDate), formatDay(trip.EndDate))
	if trip.Budget > 0 {
		fmt.Fprintf(&b, "Budget: %.2f\n", trip.Budget)
	}
	if trip.Travelers > 0 {
		fmt.Fprintf(&b, "Travelers: %d\n", trip.Travelers)
	}
	fmt.Fprintf(&b, "Interests: %s\n", orNone(trip.Interests))
	fmt.Fprintf(&b, "Extras: %s\n", orNone(trip.Extras))
	return b.String()
}

func (s *Service) Overview(ctx context.Context, trip *itinerary.Trip) (string, error) {
	prompt := "You are an intelligent travel planner. Generate a general overview for the trip:\n\n" +
		tripFacts(trip) + `
Use a friendly, cohesive tone. Start with the title "Trip to ` + trip.Destination + ` - Overview",
then a few short paragraphs on the highlights, the food and the atmosphere that suit these
travelers and their interests. Do not list a day-by-day schedule.`

	return s.complete(ctx, "llm.overview", Request{Prompt: prompt, MaxTokens: overviewMaxTokens})
}

type planReply struct {
	Plan []itinerary.Suggestion `json:"plan"`
}

func (s *Service) SuggestDayPlan(ctx context.Context, trip *itinerary.Trip, dayNumber int, req itinerary.SuggestionRequest) ([]itinerary.Suggestion, error) {
	var system, op string
	switch req.Mode {
	case itinerary.SuggestNames:
		op = "llm.suggest_names"
		limit := req.MaxPlaces
		if limit <= 0 {
			limit = 6
		}
		system = fmt.Sprintf(`You are a travel-planner assistant.
Return ONLY valid JSON like:
{"plan":[{"place":"Musée d'Orsay"}, ...]}
Rules:
- Between 3 and %d objects, in a sensible visiting order.
- place must be a real, Google-Maps-findable business or attraction near the destination.
- Do NOT repeat anything in "Already visited". No explanations!`, limit)
	default:
		op = "llm.suggest_categories"
		roles := req.Roles
		if len(roles) == 0 {
			roles = itinerary.Roles
		}
		system = fmt.Sprintf(`You are a travel-planner assistant.
Return ONLY valid JSON like:
{"plan":[{"role":"breakfast","category":"french bakery"}, ...]}
Rules:
- Exactly one object per role, in this order: %s.
- category is a short Google Maps search phrase for a kind of venue (for example "specialty coffee"
  or "modern art museum"), never the name of a specific business.
- breakfast / lunch / dinner MUST be eateries (cafe, restaurant, street food, etc.).
- Pick kinds of venues that are common enough to find well rated options. No explanations!`,
			strings.Join(lo.Map(roles, func(r itinerary.Role, _ int) string { return string(r) }), ", "))
	}

	var user strings.Builder
	user.WriteString(tripFacts(trip))
	fmt.Fprintf(&user, "Day: %d\n", dayNumber)
	if daily := trip.DailyBudget(); daily > 0 {
		fmt.Fprintf(&user, "Daily budget: about %.0f\n", daily)
	}
	if req.Tier.MinRating > 0 {
		fmt.Fprintf(&user, "Minimum rating: %.1f\n", req.Tier.MinRating)
	}
	if req.Tier.MaxPriceLevel != nil {
		fmt.Fprintf(&user, "Maximum price level (0-4): %d\n", *req.Tier.MaxPriceLevel)
	}
	if req.Tier.RadiusMeters > 0 {
		fmt.Fprintf(&user, "Within: %d km of the city centre\n", req.Tier.RadiusMeters/1000)
	}
	if req.Mode == itinerary.SuggestNames {
		fmt.Fprintf(&user, "Already visited: %s\n", orNone(strings.Join(req.Visited, ", ")))
	}

	reply, err := s.complete(ctx, op, Request{System: system, Prompt: user.String(), JSON: true, MaxTokens: planMaxTokens})
	if err != nil {
		return nil, err
	}
	return parsePlan(reply, req.Mode)
}

func validSuggestion(mode itinerary.SuggestionMode) func(itinerary.Suggestion) error {
	return func(sg itinerary.Suggestion) error {
		if mode == itinerary.SuggestNames {
			return validation.ValidateStruct(&sg,
				validation.Field(&sg.Name, validation.Required, validation.Length(1, 200)),
			)
		}
		return validation.ValidateStruct(&sg,
			validation.Field(&sg.Role, validation.Required, validation.By(func(any) error {
				if !sg.Role.Valid() {
					return fmt.Errorf("unknown role %q", sg.Role)
				}
				return nil
			})),
			validation.Field(&sg.Category, validation.Required, validation.Length(1, 120)),
		)
	}
}

// parsePlan decodes a plan reply. Malformed entries are dropped; a reply
// without a single usable entry is ErrUnparseable.
func parsePlan(reply string, mode itinerary.SuggestionMode) ([]itinerary.Suggestion, error) {
	doc, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var parsed planReply
	if strings.HasPrefix(doc, "[") {
		err = json.Unmarshal([]byte(doc), &parsed.Plan)
	} else {
		err = json.Unmarshal([]byte(doc), &parsed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	check := validSuggestion(mode)
	plan := lo.FilterMap(parsed.Plan, func(sg itinerary.Suggestion, _ int) (itinerary.Suggestion, bool) {
		sg.Role = itinerary.Role(strings.ToLower(strings.TrimSpace(string(sg.Role))))
		sg.Category = strings.TrimSpace(sg.Category)
		sg.Name = strings.TrimSpace(sg.Name)
		return sg, check(sg) == nil
	})
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: no valid plan entries", ErrUnparseable)
	}
	return plan, nil
}

func (s *Service) SuggestReplacement(ctx context.Context, trip *itinerary.Trip, dayNumber int, visited []string, note string) (string, error) {
	prompt := fmt.Sprintf(`You are a travel planner specialized in %s.
I need to replace a place that didn't fit my preferences.
Details:
- Trip day: %d
- Interests: %s
- Travelers: %d
- Already visited (do not repeat): %s
- User note for new place: %s

Suggest ONLY ONE place name (no explanation), real and coherent with the context.
Respond with the place name only.`,
		trip.Destination, dayNumber, orNone(trip.Interests), trip.Travelers,
		orNone(strings.Join(visited, ", ")), orNone(note))

	reply, err := s.complete(ctx, "llm.suggest_replacement", Request{Prompt: prompt, MaxTokens: replacementMaxTokens})
	if err != nil {
		return "", err
	}
	return cleanPlaceName(reply), nil
}

// cleanPlaceName keeps the first line of a reply without list markers or quotes.
func cleanPlaceName(reply string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(reply), "\n")
	line = strings.TrimLeft(line, "-*• ")
	return strings.Trim(strings.TrimSpace(line), `"'*`)
}

func (s *Service) ComposeNarrative(ctx context.Context, trip *itinerary.Trip, day *itinerary.Day, stops []itinerary.Stop, weather itinerary.Weather) (string, error) {
	var slots strings.Builder
	for _, stop := range stops {
		fmt.Fprintf(&slots, "%s: %s\n", stop.Role.Label(), stop.Name)
	}

	prompt := fmt.Sprintf(`Day %d - %s
Destination: %s
Weather forecast: %s

Create one block per line below, in the same order.
For each block deliver exactly:

- Suggested time span (HH:MM-HH:MM)
- "%s" + place name as provided (do not translate or alter it), alone on its line
- One paragraph (about 90 words) explaining what to do or eat there.

%s
Constraints:
- Keep the order unchanged and do not add other places after "%s".
- Breakfast/lunch/dinner paragraphs must describe food options.
- Friendly tone, English, no markdown headings.
- No extra commentary before or after the blocks; conclude with one FINAL TIP about %s.`,
		day.Number, day.Date.Format("Monday, January 2, 2006"), trip.Destination,
		itinerary.WeatherSummary(weather), itinerary.PlaceMarker, slots.String(),
		itinerary.PlaceMarker, trip.Destination)

	return s.complete(ctx, "llm.compose_narrative", Request{Prompt: prompt, MaxTokens: narrativeMaxTokens})
}

// Message is one turn of an assistant conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const maxAssistantTurns = 12

func truncateConversation(messages []Message, limit int) []Message {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

// Assist answers the last user message of a conversation about a planned trip.
func (s *Service) Assist(ctx context.Context, trip *itinerary.Trip, messages []Message) (string, error) {
	tripJSON, err := json.MarshalIndent(trip, "", "  ")
	if err != nil {
		return "", err
	}

	system := "You are a helpful travel assistant for a planned trip. " +
		"Answer using the trip context below; when it does not cover a question, say so and give general advice. " +
		"Keep answers concise.\n\nTrip context:\n" + string(tripJSON)

	var prompt strings.Builder
	for _, m := range truncateConversation(messages, maxAssistantTurns) {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&prompt, "%s: %s\n\n", role, strings.TrimSpace(m.Content))
	}
	prompt.WriteString("Assistant:")

	return s.complete(ctx, "llm.assist", Request{System: system, Prompt: prompt.String(), Temperature: 0.4, MaxTokens: assistantMaxTokens})
}
