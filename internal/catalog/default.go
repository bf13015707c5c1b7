package catalog

// Default returns the built-in illustration catalog shipped with the service.
// Keys match the illustration asset names served by the bot frontend.
func Default() *Catalog {
	return New(map[string]string{
		"barbell squat":              "squat_barbell",
		"front squat":                "squat_front",
		"goblet squat":               "squat_goblet",
		"bulgarian split squat":      "split_squat_bulgarian",
		"walking lunge":              "lunge_walking",
		"reverse lunge":              "lunge_reverse",
		"romanian deadlift":          "deadlift_romanian",
		"conventional deadlift":      "deadlift_conventional",
		"sumo deadlift":              "deadlift_sumo",
		"hip thrust":                 "hip_thrust",
		"glute bridge":               "glute_bridge",
		"leg press":                  "leg_press",
		"leg extension":              "leg_extension",
		"leg curl":                   "leg_curl",
		"standing calf raise":        "calf_raise_standing",
		"bench press":                "bench_press_flat",
		"incline bench press":        "bench_press_incline",
		"dumbbell bench press":       "bench_press_dumbbell",
		"push up":                    "push_up",
		"overhead press":             "press_overhead",
		"seated dumbbell press":      "press_dumbbell_seated",
		"lateral raise":              "raise_lateral",
		"front raise":                "raise_front",
		"pull up":                    "pull_up",
		"chin up":                    "chin_up",
		"lat pulldown":               "lat_pulldown",
		"seated cable row":           "row_cable_seated",
		"bent over row":              "row_bent_over",
		"one arm dumbbell row":       "row_dumbbell_one_arm",
		"face pull":                  "face_pull",
		"biceps curl":                "curl_biceps",
		"hammer curl":                "curl_hammer",
		"triceps pushdown":           "pushdown_triceps",
		"overhead triceps extension": "extension_triceps_overhead",
		"dip":                        "dip",
		"plank":                      "plank",
		"side plank":                 "plank_side",
		"hanging leg raise":          "leg_raise_hanging",
		"crunch":                     "crunch",
		"russian twist":              "twist_russian",
		"mountain climber":           "mountain_climber",
		"burpee":                     "burpee",
		"kettlebell swing":           "kettlebell_swing",
		"farmer carry":               "carry_farmer",
		"treadmill run":              "run_treadmill",
		"rowing machine":             "row_machine",
		"jump rope":                  "jump_rope",
	})
}
