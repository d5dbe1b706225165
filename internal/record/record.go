package record

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a record identifier is absent from the store.
var ErrNotFound = errors.New("record not found")

// ErrMissingID is returned when writing a record without an identifier.
var ErrMissingID = errors.New("record has no id")

// Sex splits the survey population into its two subpopulations.
type Sex string

const (
	SexUnknown Sex = ""
	Male       Sex = "male"
	Female     Sex = "female"
)

// ParseSex accepts the survey coding (1/2) as well as M/F and spelled-out values.
// Anything else maps to SexUnknown.
func ParseSex(s string) Sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "m", "male", "man":
		return Male
	case "2", "2.0", "f", "female", "woman":
		return Female
	default:
		return SexUnknown
	}
}

// Components holds the thirteen HEI-2015 component scores.
type Components struct {
	TotalVegetables  float64 `json:"total_vegetables"`
	GreensAndBeans   float64 `json:"greens_and_beans"`
	TotalFruits      float64 `json:"total_fruits"`
	WholeFruits      float64 `json:"whole_fruits"`
	WholeGrains      float64 `json:"whole_grains"`
	Dairy            float64 `json:"dairy"`
	TotalProtein     float64 `json:"total_protein"`
	SeafoodPlantProt float64 `json:"seafood_plant_protein"`
	FattyAcids       float64 `json:"fatty_acids"`
	Sodium           float64 `json:"sodium"`
	RefinedGrains    float64 `json:"refined_grains"`
	SaturatedFats    float64 `json:"saturated_fats"`
	AddedSugars      float64 `json:"added_sugars"`
}

// Intake holds first-day dietary recall totals.
type Intake struct {
	Energy        float64 `json:"energy_kcal"`
	Protein       float64 `json:"protein_g"`
	Carbohydrate  float64 `json:"carbohydrate_g"`
	Sugars        float64 `json:"sugars_g"`
	Fiber         float64 `json:"fiber_g"`
	TotalFat      float64 `json:"total_fat_g"`
	SaturatedFat  float64 `json:"saturated_fat_g"`
	MonoFat       float64 `json:"monounsaturated_fat_g"`
	PolyFat       float64 `json:"polyunsaturated_fat_g"`
	Cholesterol   float64 `json:"cholesterol_mg"`
	VitaminE      float64 `json:"vitamin_e_mg"`
	Retinol       float64 `json:"retinol_mcg"`
	VitaminA      float64 `json:"vitamin_a_mcg"`
	BetaCarotene  float64 `json:"beta_carotene_mcg"`
	Thiamin       float64 `json:"thiamin_mg"`
	Riboflavin    float64 `json:"riboflavin_mg"`
	Niacin        float64 `json:"niacin_mg"`
	VitaminB6     float64 `json:"vitamin_b6_mg"`
	Folate        float64 `json:"folate_mcg"`
	VitaminB12    float64 `json:"vitamin_b12_mcg"`
	VitaminC      float64 `json:"vitamin_c_mg"`
	VitaminD      float64 `json:"vitamin_d_mcg"`
	VitaminK      float64 `json:"vitamin_k_mcg"`
	Calcium       float64 `json:"calcium_mg"`
	Phosphorus    float64 `json:"phosphorus_mg"`
	Magnesium     float64 `json:"magnesium_mg"`
	Iron          float64 `json:"iron_mg"`
	Zinc          float64 `json:"zinc_mg"`
	Copper        float64 `json:"copper_mg"`
	Sodium        float64 `json:"sodium_mg"`
	Potassium     float64 `json:"potassium_mg"`
	Selenium      float64 `json:"selenium_mcg"`
	Caffeine      float64 `json:"caffeine_mg"`
	Alcohol       float64 `json:"alcohol_g"`
	Moisture      float64 `json:"moisture_g"`
}

// Body holds examination measures.
type Body struct {
	WeightKg float64 `json:"weight_kg"`
	HeightCm float64 `json:"height_cm"`
	BMI      float64 `json:"bmi"`
	WaistCm  float64 `json:"waist_cm"`
}

// FoodGroups holds food pattern equivalents totals.
type FoodGroups struct {
	Fruit        float64 `json:"fruit_cup_eq"`
	Vegetables   float64 `json:"vegetables_cup_eq"`
	WholeGrains  float64 `json:"whole_grains_oz_eq"`
	RefinedGrain float64 `json:"refined_grains_oz_eq"`
	Protein      float64 `json:"protein_oz_eq"`
	Dairy        float64 `json:"dairy_cup_eq"`
	AddedSugars  float64 `json:"added_sugars_tsp_eq"`
}

// Record is one survey respondent.
type Record struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Sex         Sex        `json:"sex"`
	Race        string     `json:"race,omitempty"`
	Education   string     `json:"education,omitempty"`
	Age         float64    `json:"age"`
	IncomeRatio float64    `json:"income_ratio"`
	HEITotal    float64    `json:"hei_total"`
	Components  Components `json:"components"`
	Intake      Intake     `json:"intake"`
	Body        Body       `json:"body"`
	FoodGroups  FoodGroups `json:"food_groups"`
}

// Predicate selects a subpopulation.
type Predicate func(Record) bool

// Everyone matches every record.
func Everyone(Record) bool { return true }

// BySex matches records of the given sex.
func BySex(s Sex) Predicate {
	return func(r Record) bool { return r.Sex == s }
}

// Reader is the read side of a record store.
type Reader interface {
	Get(ctx context.Context, id string) (Record, error)
	All(ctx context.Context) ([]Record, error)
	IDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	AverageScore(ctx context.Context, pred Predicate) (float64, error)
}

// Writer is the write side of a record store.
type Writer interface {
	// Upsert replaces the record with the same ID as a whole.
	Upsert(ctx context.Context, r Record) error
	// Insert stores r only if its ID is unused and reports whether it did.
	Insert(ctx context.Context, r Record) (bool, error)
}

// Store is a keyed table of survey records.
type Store interface {
	Reader
	Writer
	Close() error
}

// averageOf returns the mean HEI total of the matching records, 0 when none match.
func averageOf(records []Record, pred Predicate) float64 {
	if pred == nil {
		pred = Everyone
	}
	var sum float64
	n := 0
	for _, r := range records {
		if !pred(r) {
			continue
		}
		sum += r.HEITotal
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
